package nrfmodem

import (
	"context"
	"errors"
	"net/netip"
	"time"
)

// Await re-invokes op every interval for as long as it returns
// ErrWouldBlock. It returns op's first other outcome, or the context error
// once ctx is done.
func Await(ctx context.Context, interval time.Duration, op func() error) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var ticker *time.Ticker
	for {
		err := op()
		if !errors.Is(err, ErrWouldBlock) {
			return err
		}
		if ticker == nil {
			ticker = time.NewTicker(interval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// deferred opens a channel, connects it, runs fn when the connect
// succeeded and always closes the channel. The first error wins; a close
// error is only reported when everything before it succeeded.
func deferred[C, R any](open func() (C, error), connect func(C) error, fn func(C) (R, error), closeFn func(C) error) (R, error) {
	var zero R
	c, err := open()
	if err != nil {
		return zero, err
	}
	if err := connect(c); err != nil {
		_ = closeFn(c)
		return zero, err
	}
	res, err := fn(c)
	if cerr := closeFn(c); err == nil && cerr != nil {
		return res, cerr
	}
	return res, err
}

// WithCommand runs fn on a connected command channel and closes it
// afterwards.
func WithCommand[R any](m *Modem, fn func(c *CommandChannel) (R, error)) (R, error) {
	return deferred(m.CommandOpen, m.CommandConnect, fn, m.CommandClose)
}

// WithLink runs fn while a link channel keeps the cellular network
// registered. ctx bounds the wait for registration.
func WithLink[R any](ctx context.Context, m *Modem, fn func(l *LinkChannel) (R, error)) (R, error) {
	connect := func(l *LinkChannel) error {
		return Await(ctx, m.pollInterval, func() error { return m.LinkConnect(l) })
	}
	return deferred(m.LinkOpen, connect, fn, m.LinkClose)
}

// WithStream runs fn on a stream socket connected to remote.
func WithStream[R any](ctx context.Context, m *Modem, remote netip.AddrPort, fn func(s *StreamChannel) (R, error)) (R, error) {
	connect := func(s *StreamChannel) error {
		return Await(ctx, m.pollInterval, func() error { return m.StreamConnect(s, remote) })
	}
	return deferred(m.StreamOpen, connect, fn, m.StreamClose)
}

// WithDatagram runs fn on a datagram socket bound to remote.
func WithDatagram[R any](ctx context.Context, m *Modem, remote netip.AddrPort, fn func(d *DatagramChannel) (R, error)) (R, error) {
	connect := func(d *DatagramChannel) error {
		return Await(ctx, m.pollInterval, func() error { return m.DatagramConnect(d, remote) })
	}
	return deferred(m.DatagramOpen, connect, fn, m.DatagramClose)
}

// WithPositioning runs fn on a started positioning receiver.
func WithPositioning[R any](m *Modem, opts PositioningOptions, fn func(p *PositioningChannel) (R, error)) (R, error) {
	connect := func(p *PositioningChannel) error {
		return m.PositioningConnect(p, opts)
	}
	return deferred(m.PositioningOpen, connect, fn, m.PositioningClose)
}
