// Package trace records modem command traffic. A Tracer receives one Event
// per command round trip and per channel lifecycle step; FileTracer stores
// them as CBOR for offline inspection, SlogTracer prints them.
package trace

import (
	"context"
	"log/slog"
	"time"
)

// Kind classifies a trace event.
type Kind uint8

const (
	// KindCommand is a command round trip issued through the driver.
	KindCommand Kind = 0
	// KindChannel is a channel lifecycle step (open, connect, close).
	KindChannel Kind = 1
	// KindState is a resource state change.
	KindState Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "COMMAND"
	case KindChannel:
		return "CHANNEL"
	case KindState:
		return "STATE"
	default:
		return "UNKNOWN"
	}
}

// Event is one recorded step. CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time     `cbor:"1,keyasint"`
	Kind      Kind          `cbor:"2,keyasint"`
	ChannelID string        `cbor:"3,keyasint,omitempty"`
	Command   string        `cbor:"4,keyasint,omitempty"`
	Lines     []string      `cbor:"5,keyasint,omitempty"`
	Error     string        `cbor:"6,keyasint,omitempty"`
	Duration  time.Duration `cbor:"7,keyasint,omitempty"`
	// Detail is a short free-form description, e.g. "connect" or "cellular 0->1".
	Detail string `cbor:"8,keyasint,omitempty"`
}

// Tracer receives events. Implementations must be safe for concurrent use
// and must not block for long.
type Tracer interface {
	Record(event Event)
}

// Nop discards all events.
type Nop struct{}

// Record discards the event.
func (Nop) Record(Event) {}

// SlogTracer writes events to an slog.Logger at a fixed level.
type SlogTracer struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogTracer returns a tracer logging at level.
func NewSlogTracer(logger *slog.Logger, level slog.Level) *SlogTracer {
	return &SlogTracer{logger: logger, level: level}
}

// Record logs the event.
func (s *SlogTracer) Record(event Event) {
	attrs := []slog.Attr{slog.String("kind", event.Kind.String())}
	if event.ChannelID != "" {
		attrs = append(attrs, slog.String("channel", event.ChannelID))
	}
	if event.Command != "" {
		attrs = append(attrs,
			slog.String("cmd", event.Command),
			slog.Any("lines", event.Lines),
			slog.Duration("duration", event.Duration),
		)
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	s.logger.LogAttrs(context.Background(), s.level, "modem trace", attrs...)
}

// Multi fans an event out to several tracers.
type Multi []Tracer

// Record forwards the event to every tracer.
func (m Multi) Record(event Event) {
	for _, t := range m {
		t.Record(event)
	}
}

var (
	_ Tracer = Nop{}
	_ Tracer = (*SlogTracer)(nil)
	_ Tracer = Multi(nil)
)
