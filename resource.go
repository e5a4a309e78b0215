package nrfmodem

import (
	"fmt"
	"time"

	"github.com/jaracil/nrfmodem/trace"
)

// Power sequencing commands. The +CFUN functional modes 2x/3x/4x switch one
// subsystem without disturbing the other.
const (
	cmdModemOff          = "AT+CFUN=0"
	cmdLowPowerProfile   = "AT%XDATAPRFL=0"
	cmdUICCLowPower      = "AT+CEPPI=1"
	cmdPowerSavingMode   = "AT+CPSMS=1"
	cmdCellularOn        = "AT+CFUN=21"
	cmdCellularOff       = "AT+CFUN=20"
	cmdUICCOff           = "AT+CFUN=40"
	cmdPositioningOn     = "AT+CFUN=31"
	cmdPositioningOff    = "AT+CFUN=30"
	cmdRegistrationQuery = "AT+CEREG?"
	cmdClockQuery        = "AT+CCLK?"
)

var (
	cellularOnSequence  = []string{cmdLowPowerProfile, cmdUICCLowPower, cmdPowerSavingMode, cmdCellularOn}
	cellularOffSequence = []string{cmdCellularOff, cmdUICCOff}
)

// Subsystem is one independently power-sequenced radio capability.
type Subsystem int

const (
	// SubsystemCellular is the cellular link
	SubsystemCellular Subsystem = iota
	// SubsystemPositioning is the positioning (GNSS) receiver
	SubsystemPositioning
)

// String returns the subsystem name.
func (s Subsystem) String() string {
	switch s {
	case SubsystemCellular:
		return "Cellular"
	case SubsystemPositioning:
		return "Positioning"
	default:
		return "Unknown"
	}
}

// ResourceState counts the open channels that need each subsystem. A
// subsystem is active iff its count is greater than zero.
type ResourceState struct {
	Cellular    uint32
	Positioning uint32
}

// Active reports whether the subsystem is powered.
func (s ResourceState) Active(sub Subsystem) bool {
	return s.count(sub) > 0
}

func (s ResourceState) count(sub Subsystem) uint32 {
	if sub == SubsystemPositioning {
		return s.Positioning
	}
	return s.Cellular
}

// add returns a copy with the subsystem count moved by delta. Going below
// zero means a release without a matching acquire.
func (s ResourceState) add(sub Subsystem, delta int) ResourceState {
	n := int64(s.count(sub)) + int64(delta)
	if n < 0 {
		panic(fmt.Sprintf("nrfmodem: %s reference count underflow", sub))
	}
	if sub == SubsystemPositioning {
		s.Positioning = uint32(n)
	} else {
		s.Cellular = uint32(n)
	}
	return s
}

func (s ResourceState) String() string {
	return fmt.Sprintf("cellular=%d positioning=%d", s.Cellular, s.Positioning)
}

// changeState applies the minimal power transition from the current state
// to next. Both subsystems are sequenced before next is committed: on any
// failure the state is left untouched. The lock must be held.
func (m *Modem) changeState(next ResourceState) error {
	prev := m.res
	m.logger.Debug("new state", "prev", prev.String(), "next", next.String())

	switch {
	case prev.Cellular == 0 && next.Cellular > 0:
		m.logger.Debug("turning on modem cellular")
		for _, cmd := range cellularOnSequence {
			if err := m.command(cmd, nil); err != nil {
				return err
			}
		}
		m.metrics.CellularPowerOns++
	case prev.Cellular > 0 && next.Cellular == 0:
		m.logger.Debug("turning off modem cellular")
		for _, cmd := range cellularOffSequence {
			if err := m.command(cmd, nil); err != nil {
				return err
			}
		}
		m.metrics.CellularPowerOffs++
	}

	switch {
	case prev.Positioning == 0 && next.Positioning > 0:
		m.logger.Debug("turning on modem positioning")
		if m.powerHook != nil {
			if err := m.powerHook(m, true); err != nil {
				return err
			}
		}
		if err := m.command(cmdPositioningOn, nil); err != nil {
			if m.powerHook != nil {
				// Rails follow the count, which stays at zero.
				if hookErr := m.powerHook(m, false); hookErr != nil {
					m.logger.Warn("positioning power hook rollback failed", "error", hookErr)
				}
			}
			return err
		}
		m.metrics.PositioningPowerOns++
	case prev.Positioning > 0 && next.Positioning == 0:
		m.logger.Debug("turning off modem positioning")
		if err := m.command(cmdPositioningOff, nil); err != nil {
			return err
		}
		if m.powerHook != nil {
			if err := m.powerHook(m, false); err != nil {
				return err
			}
		}
		m.metrics.PositioningPowerOffs++
	}

	m.res = next
	if prev != next {
		m.tracer.Record(trace.Event{
			Timestamp: time.Now(),
			Kind:      trace.KindState,
			Detail:    prev.String() + " -> " + next.String(),
		})
		if m.stateTransition != nil {
			m.stateTransition(m, prev, next)
		}
	}
	return nil
}

// acquire takes one reference on sub.
func (m *Modem) acquire(sub Subsystem) error {
	return m.changeState(m.res.add(sub, 1))
}

// release drops one reference on sub.
func (m *Modem) release(sub Subsystem) error {
	return m.changeState(m.res.add(sub, -1))
}
