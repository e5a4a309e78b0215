package nrfmodem

import (
	"net/netip"
)

// StreamChannel is a cellular stream (TCP) socket.
type StreamChannel struct {
	channel
	raw    RawSocket
	remote netip.AddrPort
}

// Remote returns the address the stream was connected to.
func (s *StreamChannel) Remote() netip.AddrPort {
	return s.remote
}

// StreamOpen allocates a stream socket in state Closed.
func (m *Modem) StreamOpen() (*StreamChannel, error) {
	m.Lock()
	defer m.Unlock()

	raw, err := m.driver.OpenStream()
	if err != nil {
		return nil, err
	}
	s := &StreamChannel{channel: newChannel(KindStream), raw: raw}
	track(s)
	m.opened(&s.channel)
	return s, nil
}

// StreamConnect brings the cellular link up and connects the socket to
// remote. It returns ErrWouldBlock until the network is registered and the
// socket connection is established; re-invoke it with the same address.
func (m *Modem) StreamConnect(s *StreamChannel, remote netip.AddrPort) error {
	m.Lock()
	defer m.Unlock()

	if err := m.beginConnect(&s.channel); err != nil {
		return err
	}
	if err := m.pollRegistration(); err != nil {
		return err
	}
	if err := s.raw.Connect(remote.Addr().String(), remote.Port()); err != nil {
		return err
	}
	s.remote = remote
	m.finishConnect(&s.channel)
	return nil
}

// StreamIsConnected reports whether the socket is Connected.
func (m *Modem) StreamIsConnected(s *StreamChannel) bool {
	m.Lock()
	defer m.Unlock()
	return s.state == StateConnected
}

// StreamSend queues b for transmission and returns the number of bytes
// accepted, or ErrWouldBlock when the send buffer is full.
func (m *Modem) StreamSend(s *StreamChannel, b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	n, err := s.raw.Send(b)
	m.metrics.TxBytes += n
	return n, err
}

// StreamReceive copies received bytes into b, or returns ErrWouldBlock when
// none are pending. A closed peer yields io.EOF.
func (m *Modem) StreamReceive(s *StreamChannel, b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	n, err := s.raw.Recv(b)
	m.metrics.RxBytes += n
	return n, err
}

// StreamClose releases the socket and its cellular reference.
func (m *Modem) StreamClose(s *StreamChannel) error {
	m.Lock()
	defer m.Unlock()

	err := m.closeChannel(&s.channel, s.raw)
	if s.released {
		untrack(s)
	}
	return err
}
