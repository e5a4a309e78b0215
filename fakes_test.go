package nrfmodem

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDriver answers every command with OK, recording it. Registration and
// clock queries answer from the scripted lines.
type fakeDriver struct {
	mu     sync.Mutex
	cmds   []string
	fail   map[string]error
	cereg  []string
	clock  string
	limit  int
	opened int

	commands    []*fakeCommand
	sockets     []*fakeSocket
	positioning []*fakePositioning
	records     []AddrRecord
	lookups     []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{fail: make(map[string]error), cereg: []string{"+CEREG: 0,1"}}
}

func (d *fakeDriver) Command(cmd string, onLine func(line string)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cmds = append(d.cmds, cmd)
	if err := d.fail[cmd]; err != nil {
		return err
	}
	switch cmd {
	case cmdRegistrationQuery:
		if len(d.cereg) > 0 {
			line := d.cereg[0]
			if len(d.cereg) > 1 {
				d.cereg = d.cereg[1:]
			}
			if line != "" {
				onLine(line)
			}
		}
	case cmdClockQuery:
		if d.clock != "" {
			onLine(d.clock)
		}
	}
	return nil
}

func (d *fakeDriver) alloc(op string) error {
	if d.limit > 0 && d.opened >= d.limit {
		return &DriverError{Op: op, Code: -1, Err: ErrNoHandles}
	}
	d.opened++
	return nil
}

func (d *fakeDriver) OpenCommand() (RawCommand, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alloc("open command"); err != nil {
		return nil, err
	}
	c := &fakeCommand{}
	d.commands = append(d.commands, c)
	return c, nil
}

func (d *fakeDriver) openSocket(op string) (RawSocket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alloc(op); err != nil {
		return nil, err
	}
	s := &fakeSocket{}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDriver) OpenStream() (RawSocket, error) {
	return d.openSocket("open stream")
}

func (d *fakeDriver) OpenDatagram() (RawSocket, error) {
	return d.openSocket("open datagram")
}

func (d *fakeDriver) OpenPositioning() (RawPositioning, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alloc("open positioning"); err != nil {
		return nil, err
	}
	p := &fakePositioning{}
	d.positioning = append(d.positioning, p)
	return p, nil
}

func (d *fakeDriver) LookupHost(hostname string, hint Family) ([]AddrRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups = append(d.lookups, hostname)
	return d.records, nil
}

// issued returns the commands sent since the last reset.
func (d *fakeDriver) issued() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.cmds...)
}

func (d *fakeDriver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = nil
}

func (d *fakeDriver) count(cmd string) int {
	n := 0
	for _, c := range d.issued() {
		if c == cmd {
			n++
		}
	}
	return n
}

type fakeCommand struct {
	sent    []string
	pending []string
	closed  int
}

func (c *fakeCommand) Send(cmd string) error {
	c.sent = append(c.sent, cmd)
	c.pending = append(c.pending, "OK")
	return nil
}

func (c *fakeCommand) Write(data []byte) error {
	return c.Send(string(data))
}

func (c *fakeCommand) PollResponse(fn func(line string)) error {
	for _, l := range c.pending {
		fn(l)
	}
	c.pending = nil
	return nil
}

func (c *fakeCommand) Recv(b []byte) (int, error) {
	if len(c.pending) == 0 {
		return 0, ErrWouldBlock
	}
	line := c.pending[0] + "\r\n"
	if len(b) < len(line) {
		return 0, &BufferTooSmallError{Required: len(line)}
	}
	c.pending = c.pending[1:]
	return copy(b, line), nil
}

func (c *fakeCommand) Close() error {
	c.closed++
	return nil
}

type fakeSocket struct {
	connectBlocks int
	ip            string
	port          uint16
	connects      int
	sent          []byte
	rx            [][]byte
	closed        int
	closeErr      error
}

func (s *fakeSocket) Connect(ip string, port uint16) error {
	s.connects++
	if s.connectBlocks > 0 {
		s.connectBlocks--
		return ErrWouldBlock
	}
	s.ip, s.port = ip, port
	return nil
}

func (s *fakeSocket) Send(b []byte) (int, error) {
	s.sent = append(s.sent, b...)
	return len(b), nil
}

func (s *fakeSocket) Recv(b []byte) (int, error) {
	if len(s.rx) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(b, s.rx[0])
	s.rx = s.rx[1:]
	return n, nil
}

func (s *fakeSocket) Close() error {
	s.closed++
	return s.closeErr
}

type fakePositioning struct {
	calls    []string
	startErr error
	fixes    []PositioningData
	closed   int
	opts     PositioningOptions
}

func (p *fakePositioning) SetFixInterval(seconds uint16) error {
	p.calls = append(p.calls, "interval")
	p.opts.FixInterval = seconds
	return nil
}

func (p *fakePositioning) SetFixRetry(seconds uint16) error {
	p.calls = append(p.calls, "retry")
	p.opts.FixRetry = seconds
	return nil
}

func (p *fakePositioning) SetNMEAMask(mask NMEAMask) error {
	p.calls = append(p.calls, "nmea")
	p.opts.NMEAMask = mask
	return nil
}

func (p *fakePositioning) Start(mask DeleteMask) error {
	p.calls = append(p.calls, "start")
	if p.startErr != nil {
		return p.startErr
	}
	p.opts.DeleteMask = mask
	return nil
}

func (p *fakePositioning) Fix() (PositioningData, error) {
	if len(p.fixes) == 0 {
		return PositioningData{}, ErrWouldBlock
	}
	f := p.fixes[0]
	p.fixes = p.fixes[1:]
	return f, nil
}

func (p *fakePositioning) Close() error {
	p.closed++
	return nil
}

// newTestModem creates a modem over a fresh fake driver and forgets the
// initialization commands.
func newTestModem(t *testing.T) (*Modem, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	m, err := NewModem(&Config{Driver: d, PollInterval: 1})
	require.NoError(t, err)
	d.reset()
	return m, d
}

var testRemote = netip.MustParseAddrPort("142.250.179.211:80")
