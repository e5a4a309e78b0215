package nrfmodem

import (
	"strings"
	"time"
)

// DeleteMask selects the receiver data discarded before a start. A zero mask
// keeps everything, giving the fastest time to fix.
type DeleteMask uint32

const (
	DeleteEphemerides DeleteMask = 1 << iota
	DeleteAlmanac
	DeleteIonosphericCorrection
	DeleteLastGoodFix
	DeleteGPSTimeOfWeek
	DeleteGPSWeek
	DeleteUTCParameters
	DeleteLocalClock
	DeleteGPSTimeOfWeekPrecision

	// DeleteAll forces a cold start
	DeleteAll DeleteMask = 1<<iota - 1
)

// NMEAMask selects the NMEA sentences the receiver reports.
type NMEAMask uint16

const (
	NMEAGGA NMEAMask = 1 << iota
	NMEAGLL
	NMEAGSA
	NMEAGSV
	NMEARMC
)

var nmeaSentences = []struct {
	mask NMEAMask
	id   string
}{
	{NMEAGGA, "GGA"},
	{NMEAGLL, "GLL"},
	{NMEAGSA, "GSA"},
	{NMEAGSV, "GSV"},
	{NMEARMC, "RMC"},
}

// Match reports whether the sentence (for example "$GPGGA,...") is enabled
// by the mask. Sentences of unknown type never match.
func (n NMEAMask) Match(sentence string) bool {
	if len(sentence) < 6 || sentence[0] != '$' {
		return false
	}
	id := sentence[3:6]
	for _, s := range nmeaSentences {
		if s.id == id {
			return n&s.mask != 0
		}
	}
	return false
}

func (n NMEAMask) String() string {
	var ids []string
	for _, s := range nmeaSentences {
		if n&s.mask != 0 {
			ids = append(ids, s.id)
		}
	}
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, "|")
}

// PositioningData is one record delivered by the receiver.
type PositioningData struct {
	// Sentence is the NMEA sentence, without line terminator
	Sentence string
	// Received is when the driver read the sentence
	Received time.Time
}

// PositioningOptions configures the receiver at connect time.
type PositioningOptions struct {
	// DeleteMask selects the data discarded before starting
	DeleteMask DeleteMask
	// FixInterval is the number of seconds between fixes (default: 1)
	FixInterval uint16
	// FixRetry is the number of seconds the receiver searches for a fix (default: 60)
	FixRetry uint16
	// NMEAMask selects the reported sentences
	NMEAMask NMEAMask
}

// DefaultPositioningOptions returns the options used for a continuous
// navigation session.
func DefaultPositioningOptions() PositioningOptions {
	return PositioningOptions{FixInterval: 1, FixRetry: 60}
}

// PositioningChannel is the positioning receiver.
type PositioningChannel struct {
	channel
	raw RawPositioning
}

// PositioningOpen allocates the receiver handle in state Closed.
func (m *Modem) PositioningOpen() (*PositioningChannel, error) {
	m.Lock()
	defer m.Unlock()

	raw, err := m.driver.OpenPositioning()
	if err != nil {
		return nil, err
	}
	p := &PositioningChannel{channel: newChannel(KindPositioning), raw: raw}
	track(p)
	m.opened(&p.channel)
	return p, nil
}

// PositioningConnect powers the receiver up, applies opts and starts it. If
// configuring the receiver fails the positioning reference is kept: the
// channel must still be closed, and connecting it again retries the
// configuration.
func (m *Modem) PositioningConnect(p *PositioningChannel, opts PositioningOptions) error {
	m.Lock()
	defer m.Unlock()

	if err := m.beginConnect(&p.channel); err != nil {
		return err
	}
	if err := p.raw.SetFixInterval(opts.FixInterval); err != nil {
		return err
	}
	if err := p.raw.SetFixRetry(opts.FixRetry); err != nil {
		return err
	}
	if err := p.raw.SetNMEAMask(opts.NMEAMask); err != nil {
		return err
	}
	if err := p.raw.Start(opts.DeleteMask); err != nil {
		return err
	}
	m.finishConnect(&p.channel)
	return nil
}

// PositioningIsConnected reports whether the receiver is Connected.
func (m *Modem) PositioningIsConnected(p *PositioningChannel) bool {
	m.Lock()
	defer m.Unlock()
	return p.state == StateConnected
}

// PositioningReceive returns the next record or ErrWouldBlock.
func (m *Modem) PositioningReceive(p *PositioningChannel) (PositioningData, error) {
	m.Lock()
	defer m.Unlock()

	if err := p.checkConnected(); err != nil {
		return PositioningData{}, err
	}
	data, err := p.raw.Fix()
	if err != nil {
		return PositioningData{}, err
	}
	m.metrics.RxBytes += len(data.Sentence)
	return data, nil
}

// PositioningClose releases the receiver and its positioning reference.
func (m *Modem) PositioningClose(p *PositioningChannel) error {
	m.Lock()
	defer m.Unlock()

	err := m.closeChannel(&p.channel, p.raw)
	if p.released {
		untrack(p)
	}
	return err
}
