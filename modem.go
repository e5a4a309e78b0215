// Package nrfmodem arbitrates a single cellular/positioning modem on behalf
// of several independent logical channels: diagnostic command sessions,
// cellular link sessions, stream and datagram sockets, and a positioning
// receiver. All of them share a uniform non-blocking contract: an operation
// that cannot complete yet returns ErrWouldBlock and must be re-invoked.
//
// The Modem owns a reference count per radio subsystem (cellular,
// positioning). Connecting a channel increments the count of the subsystem it
// needs and closing it decrements the count; a subsystem is powered on when
// its count leaves zero and powered off when it returns to zero. Channels
// must always be closed. A channel that is garbage collected while it still
// holds a reference aborts the process.
//
// Example usage:
//
//	m, err := nrfmodem.NewModem(&nrfmodem.Config{Driver: drv})
//	if err != nil {
//		log.Fatal(err)
//	}
//	s, err := m.StreamOpen()
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = nrfmodem.Await(ctx, time.Second, func() error {
//		return m.StreamConnect(s, netip.MustParseAddrPort("142.250.179.211:80"))
//	})
//	...
//	m.StreamClose(s)
package nrfmodem

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jaracil/nrfmodem/trace"
)

// DefaultPollInterval is the retry interval used by the deferred helpers.
const DefaultPollInterval = 100 * time.Millisecond

// PowerHookType is invoked around positioning power transitions so the
// application can drive external power rails: with true before the receiver
// is activated, with false after it is deactivated. The modem lock is held
// while the hook runs; use the non-Sync methods only.
type PowerHookType func(m *Modem, enabling bool) error

// StateTransitionType is called after every committed resource state change.
// The modem lock is held while it runs.
type StateTransitionType func(m *Modem, prev ResourceState, next ResourceState)

// Config contains the configuration parameters for creating a new Modem.
// Driver is required, the other fields have reasonable defaults.
type Config struct {
	// Driver is the native modem service (required)
	Driver Driver
	// Resolver resolves hostnames; when nil the Driver is used if it implements Resolver
	Resolver Resolver
	// SystemMode selects the radios the modem may use (default: DefaultSystemMode)
	SystemMode SystemMode
	// PowerHook is an optional callback around positioning power transitions
	PowerHook PowerHookType
	// StateTransition is an optional callback for resource state change notifications
	StateTransition StateTransitionType
	// Logger receives debug records; nil discards them
	Logger *slog.Logger
	// Tracer records command traffic; nil disables tracing
	Tracer trace.Tracer
	// PollInterval is the retry interval of the deferred helpers (default: DefaultPollInterval)
	PollInterval time.Duration
}

// Metrics contains runtime statistics for a Modem. All counters are
// cumulative since the modem was created.
type Metrics struct {
	// State is the current resource state
	State ResourceState
	// CommandsSent is the number of command round trips issued
	CommandsSent int
	// CommandErrors is the number of command round trips that failed
	CommandErrors int
	// CellularPowerOns is the number of completed cellular power-on sequences
	CellularPowerOns int
	// CellularPowerOffs is the number of completed cellular power-off sequences
	CellularPowerOffs int
	// PositioningPowerOns is the number of completed positioning power-on sequences
	PositioningPowerOns int
	// PositioningPowerOffs is the number of completed positioning power-off sequences
	PositioningPowerOffs int
	// ChannelsOpened is the number of channels allocated
	ChannelsOpened int
	// ChannelsClosed is the number of channels released
	ChannelsClosed int
	// Connects is the number of successful channel connects
	Connects int
	// TxBytes is the total number of bytes sent through channels
	TxBytes int
	// RxBytes is the total number of bytes received through channels
	RxBytes int
	// LastCommandTime is the timestamp of the last command round trip
	LastCommandTime time.Time
	// LastConnTime is the timestamp of the last successful channel connect
	LastConnTime time.Time
}

// Modem is the handle to the shared radio. It owns the resource state and is
// the only component that issues power-sequencing commands.
//
// The modem is safe for concurrent use; every channel operation takes the
// modem lock. State, Metrics and SetSystemMode require the caller to hold the
// lock (they are meant for hooks), with Sync variants that acquire it.
type Modem struct {
	sync.Mutex
	driver          Driver
	resolver        Resolver
	res             ResourceState
	powerHook       PowerHookType
	stateTransition StateTransitionType
	logger          *slog.Logger
	tracer          trace.Tracer
	pollInterval    time.Duration
	metrics         *Metrics
}

// NewModem creates a modem handle. It powers the modem off and applies the
// configured system mode before returning.
//
// Returns ErrConfigRequired if config is nil or has no Driver.
func NewModem(config *Config) (*Modem, error) {
	if config == nil || config.Driver == nil {
		return nil, ErrConfigRequired
	}

	m := &Modem{
		driver:          config.Driver,
		resolver:        config.Resolver,
		powerHook:       config.PowerHook,
		stateTransition: config.StateTransition,
		logger:          config.Logger,
		tracer:          config.Tracer,
		pollInterval:    config.PollInterval,
		metrics:         &Metrics{},
	}
	if m.resolver == nil {
		if r, ok := config.Driver.(Resolver); ok {
			m.resolver = r
		}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.tracer == nil {
		m.tracer = trace.Nop{}
	}
	if m.pollInterval <= 0 {
		m.pollInterval = DefaultPollInterval
	}
	mode := config.SystemMode
	if mode == (SystemMode{}) {
		mode = DefaultSystemMode
	}

	m.Lock()
	defer m.Unlock()
	if err := m.command(cmdModemOff, nil); err != nil {
		return nil, err
	}
	if err := m.setSystemMode(mode); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Modem) checkLock() {
	if m.TryLock() {
		panic("Modem lock not held")
	}
}

// command runs one round trip through the driver. The lock must be held.
func (m *Modem) command(cmd string, onLine func(line string)) error {
	start := time.Now()
	var lines []string
	err := m.driver.Command(cmd, func(line string) {
		lines = append(lines, line)
		if onLine != nil {
			onLine(line)
		}
	})
	m.metrics.CommandsSent++
	m.metrics.LastCommandTime = start

	ev := trace.Event{
		Timestamp: start,
		Kind:      trace.KindCommand,
		Command:   cmd,
		Lines:     lines,
		Duration:  time.Since(start),
	}
	if err != nil {
		m.metrics.CommandErrors++
		ev.Error = err.Error()
		m.logger.Debug("command failed", "cmd", cmd, "error", err)
	}
	m.tracer.Record(ev)
	return err
}

func (m *Modem) state() ResourceState {
	return m.res
}

// State returns the current resource state.
// The modem lock must be held before calling this method.
// Use StateSync for automatic lock management.
func (m *Modem) State() ResourceState {
	m.checkLock()
	return m.state()
}

// StateSync returns the current resource state with automatic lock management.
func (m *Modem) StateSync() ResourceState {
	m.Lock()
	defer m.Unlock()
	return m.state()
}

// Metrics returns a copy of the current modem metrics.
// The modem lock must be held before calling this method.
// Use MetricsSync for automatic lock management.
func (m *Modem) Metrics() *Metrics {
	m.checkLock()
	copy := *m.metrics
	copy.State = m.res
	return &copy
}

// MetricsSync returns a copy of the current modem metrics with automatic lock management.
func (m *Modem) MetricsSync() *Metrics {
	m.Lock()
	defer m.Unlock()
	return m.Metrics()
}

// PollInterval returns the retry interval used by the deferred helpers.
func (m *Modem) PollInterval() time.Duration {
	return m.pollInterval
}
