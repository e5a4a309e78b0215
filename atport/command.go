package atport

import (
	"strings"
	"sync"

	"github.com/jaracil/nrfmodem"
)

// commandHandle is a raw command channel. Each Send runs one round trip on
// the shared command port and buffers the response, final result included.
type commandHandle struct {
	d       *Driver
	mu      sync.Mutex
	pending []string
	closed  bool
}

// OpenCommand allocates a raw command channel.
func (d *Driver) OpenCommand() (nrfmodem.RawCommand, error) {
	if err := d.alloc("open command"); err != nil {
		return nil, err
	}
	return &commandHandle{d: d}, nil
}

func (c *commandHandle) Send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &nrfmodem.DriverError{Op: "command send", Err: ErrPortClosed}
	}

	var lines []string
	final, err := c.d.roundTrip(cmd, func(line string) {
		lines = append(lines, line)
	})
	if final == "" {
		// No final result, nothing worth buffering.
		return err
	}
	c.pending = append(c.pending, lines...)
	c.pending = append(c.pending, final)
	return nil
}

// Write sends raw bytes. Trailing line terminators are stripped, the port
// appends its own.
func (c *commandHandle) Write(data []byte) error {
	return c.Send(strings.TrimRight(string(data), "\r\n"))
}

func (c *commandHandle) PollResponse(fn func(line string)) error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, l := range pending {
		fn(l)
	}
	return nil
}

func (c *commandHandle) Recv(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, nrfmodem.ErrWouldBlock
	}
	line := c.pending[0] + "\r\n"
	if len(b) < len(line) {
		return 0, &nrfmodem.BufferTooSmallError{Required: len(line)}
	}
	c.pending = c.pending[1:]
	return copy(b, line), nil
}

func (c *commandHandle) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	c.d.free()
	return nil
}
