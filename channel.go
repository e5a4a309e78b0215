package nrfmodem

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jaracil/nrfmodem/trace"
)

// ChannelState is the lifecycle state every channel kind shares.
type ChannelState int

const (
	// StateClosed is the initial state; no resource reference is held
	StateClosed ChannelState = iota
	// StatePendingResource holds a resource reference while the subsystem comes up
	StatePendingResource
	// StateConnected is the usable state
	StateConnected
)

// String returns a human-readable representation of the channel state.
func (s ChannelState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StatePendingResource:
		return "PendingResource"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Kind is the logical transport flavor of a channel.
type Kind int

const (
	// KindCommand is a diagnostic command channel; it needs no subsystem
	KindCommand Kind = iota
	// KindLink is a command channel that keeps the cellular link up
	KindLink
	// KindStream is a cellular stream (TCP) socket
	KindStream
	// KindDatagram is a cellular datagram (UDP) socket
	KindDatagram
	// KindPositioning is the positioning receiver
	KindPositioning
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "Command"
	case KindLink:
		return "Link"
	case KindStream:
		return "Stream"
	case KindDatagram:
		return "Datagram"
	case KindPositioning:
		return "Positioning"
	default:
		return "Unknown"
	}
}

// Subsystem returns the subsystem a connected channel of this kind holds a
// reference on. ok is false for kinds that need none.
func (k Kind) Subsystem() (sub Subsystem, ok bool) {
	switch k {
	case KindLink, KindStream, KindDatagram:
		return SubsystemCellular, true
	case KindPositioning:
		return SubsystemPositioning, true
	default:
		return 0, false
	}
}

// channel is the lifecycle core embedded in every channel kind. It is only
// touched with the modem lock held.
type channel struct {
	id    string
	kind  Kind
	state ChannelState
	// rawClosed is set once the raw handle has been released; released once
	// the resource reference has been returned as well.
	rawClosed bool
	released  bool
}

func newChannel(kind Kind) channel {
	return channel{id: uuid.NewString(), kind: kind}
}

func (c *channel) base() *channel {
	return c
}

// ID returns the channel's unique identifier, as used in logs and traces.
func (c *channel) ID() string {
	return c.id
}

// Kind returns the channel kind.
func (c *channel) Kind() Kind {
	return c.kind
}

// leakHandler runs when a channel holding a resource reference is garbage
// collected without Close. It runs on the finalizer goroutine, so the panic
// takes the process down.
var leakHandler = func(kind Kind, id string, state ChannelState) {
	panic(fmt.Sprintf("nrfmodem: %s channel %s released in state %s without Close", kind, id, state))
}

type channelObject interface {
	base() *channel
}

// track arms the leak check on a freshly opened channel.
func track[T any, PT interface {
	*T
	channelObject
}](obj PT) {
	runtime.SetFinalizer(obj, func(o PT) {
		c := o.base()
		if c.state != StateClosed {
			leakHandler(c.kind, c.id, c.state)
		}
	})
}

func untrack(obj any) {
	runtime.SetFinalizer(obj, nil)
}

func (m *Modem) record(c *channel, detail string, err error) {
	ev := trace.Event{
		Timestamp: time.Now(),
		Kind:      trace.KindChannel,
		ChannelID: c.id,
		Detail:    c.kind.String() + " " + detail,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.tracer.Record(ev)
}

func (m *Modem) opened(c *channel) {
	m.metrics.ChannelsOpened++
	m.logger.Debug("channel opened", "kind", c.kind.String(), "id", c.id)
	m.record(c, "open", nil)
}

// beginConnect performs the Closed -> PendingResource step: it takes the
// subsystem reference exactly once, however often connect is retried.
func (m *Modem) beginConnect(c *channel) error {
	if c.released || c.rawClosed {
		return ErrChannelReleased
	}
	switch c.state {
	case StateConnected:
		return ErrAlreadyOpen
	case StatePendingResource:
		return nil
	}
	if sub, ok := c.kind.Subsystem(); ok {
		if err := m.acquire(sub); err != nil {
			m.record(c, "acquire", err)
			return err
		}
	}
	c.state = StatePendingResource
	m.logger.Debug("channel pending resource", "kind", c.kind.String(), "id", c.id)
	return nil
}

func (m *Modem) finishConnect(c *channel) {
	c.state = StateConnected
	m.metrics.Connects++
	m.metrics.LastConnTime = time.Now()
	m.logger.Debug("channel connected", "kind", c.kind.String(), "id", c.id)
	m.record(c, "connect", nil)
}

// checkConnected guards send and receive.
func (c *channel) checkConnected() error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	return nil
}

// closeChannel releases the raw handle and, when the channel held one, the
// subsystem reference. If powering the subsystem down fails the reference is
// kept and the channel stays open so that Close can be retried.
func (m *Modem) closeChannel(c *channel, raw interface{ Close() error }) error {
	if c.released {
		return ErrChannelReleased
	}
	prev := c.state
	c.state = StateClosed

	var rawErr error
	if !c.rawClosed {
		c.rawClosed = true
		rawErr = raw.Close()
	}

	if prev != StateClosed {
		if sub, ok := c.kind.Subsystem(); ok {
			if err := m.release(sub); err != nil {
				c.state = prev
				m.record(c, "close", err)
				return err
			}
		}
	}

	c.released = true
	m.metrics.ChannelsClosed++
	m.logger.Debug("channel closed", "kind", c.kind.String(), "id", c.id)
	m.record(c, "close", rawErr)
	return rawErr
}
