package atport

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/jaracil/nrfmodem"
)

const (
	chunkQueueLen = 16
	streamChunk   = 4096
	datagramChunk = 65535 // largest UDP payload
)

type dialResult struct {
	conn net.Conn
	err  error
}

// socketHandle is a raw socket dialed through the host network stack.
// Connect, Send and Recv never block: a background dial, reader and writer
// move the data while the caller polls.
type socketHandle struct {
	d       *Driver
	network string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	dial   chan dialResult
	conn   net.Conn
	rx     chan []byte
	tx     chan []byte
	head   []byte
	rxErr  error
	txErr  error
	closed bool
}

// OpenStream allocates a raw TCP socket.
func (d *Driver) OpenStream() (nrfmodem.RawSocket, error) {
	return d.openSocket("open stream", "tcp")
}

// OpenDatagram allocates a raw UDP socket.
func (d *Driver) OpenDatagram() (nrfmodem.RawSocket, error) {
	return d.openSocket("open datagram", "udp")
}

func (d *Driver) openSocket(op, network string) (nrfmodem.RawSocket, error) {
	if err := d.alloc(op); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &socketHandle{d: d, network: network, ctx: ctx, cancel: cancel}, nil
}

func (s *socketHandle) Connect(ip string, port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return &nrfmodem.DriverError{Op: "connect", Err: net.ErrClosed}
	case s.conn != nil:
		return nil
	}

	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	if s.network == "udp" {
		// UDP dial only binds, it does not wait for the peer.
		conn, err := net.Dial(s.network, addr)
		if err != nil {
			return &nrfmodem.DriverError{Op: "connect", Err: err}
		}
		s.start(conn)
		return nil
	}

	if s.dial == nil {
		s.dial = make(chan dialResult, 1)
		go s.dialTask(addr, s.dial)
		return nrfmodem.ErrWouldBlock
	}
	select {
	case res := <-s.dial:
		s.dial = nil
		if res.err != nil {
			return &nrfmodem.DriverError{Op: "connect", Err: res.err}
		}
		s.start(res.conn)
		return nil
	default:
		return nrfmodem.ErrWouldBlock
	}
}

func (s *socketHandle) dialTask(addr string, done chan<- dialResult) {
	ctx, cancel := context.WithTimeout(s.ctx, s.d.dialTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, s.network, addr)
	if err == nil && s.ctx.Err() != nil {
		conn.Close()
		conn, err = nil, s.ctx.Err()
	}
	s.d.logger.Debug("dial finished", "addr", addr, "error", err)
	done <- dialResult{conn: conn, err: err}
}

// start runs the reader and writer for conn. The socket lock must be held.
func (s *socketHandle) start(conn net.Conn) {
	s.conn = conn
	s.rx = make(chan []byte, chunkQueueLen)
	s.tx = make(chan []byte, chunkQueueLen)
	size := streamChunk
	if s.network == "udp" {
		size = datagramChunk
	}
	go s.readTask(conn, size)
	go s.writeTask(conn)
}

func (s *socketHandle) readTask(conn net.Conn, size int) {
	defer close(s.rx)
	buf := make([]byte, size)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.rx <- chunk:
			case <-s.ctx.Done():
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.rxErr = err
			s.mu.Unlock()
			return
		}
	}
}

func (s *socketHandle) writeTask(conn net.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case b := <-s.tx:
			if _, err := conn.Write(b); err != nil {
				s.mu.Lock()
				s.txErr = err
				s.mu.Unlock()
				return
			}
		}
	}
}

func (s *socketHandle) Send(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.closed {
		return 0, &nrfmodem.DriverError{Op: "send", Err: nrfmodem.ErrNotConnected}
	}
	if s.txErr != nil {
		return 0, &nrfmodem.DriverError{Op: "send", Err: s.txErr}
	}
	chunk := make([]byte, len(b))
	copy(chunk, b)
	select {
	case s.tx <- chunk:
		return len(b), nil
	default:
		return 0, nrfmodem.ErrWouldBlock
	}
}

// Recv copies received bytes into b. A stream hands out partial chunks; a
// datagram that does not fit stays queued and a *BufferTooSmallError is
// returned. io.EOF reports an orderly shutdown by the peer.
func (s *socketHandle) Recv(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.closed {
		return 0, &nrfmodem.DriverError{Op: "recv", Err: nrfmodem.ErrNotConnected}
	}
	if s.head == nil {
		select {
		case chunk, ok := <-s.rx:
			if !ok {
				if s.rxErr == io.EOF {
					return 0, io.EOF
				}
				return 0, &nrfmodem.DriverError{Op: "recv", Err: s.rxErr}
			}
			s.head = chunk
		default:
			return 0, nrfmodem.ErrWouldBlock
		}
	}

	if s.network == "udp" && len(b) < len(s.head) {
		return 0, &nrfmodem.BufferTooSmallError{Required: len(s.head)}
	}
	n := copy(b, s.head)
	if n < len(s.head) {
		s.head = s.head[n:]
	} else {
		s.head = nil
	}
	return n, nil
}

func (s *socketHandle) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.d.free()
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return &nrfmodem.DriverError{Op: "close", Err: err}
	}
	return nil
}
