package nrfmodem

import (
	"net/netip"
)

// DatagramChannel is a cellular datagram (UDP) socket bound to one remote
// peer.
type DatagramChannel struct {
	channel
	raw    RawSocket
	remote netip.AddrPort
}

// DatagramOpen allocates a datagram socket in state Closed.
func (m *Modem) DatagramOpen() (*DatagramChannel, error) {
	m.Lock()
	defer m.Unlock()

	raw, err := m.driver.OpenDatagram()
	if err != nil {
		return nil, err
	}
	d := &DatagramChannel{channel: newChannel(KindDatagram), raw: raw}
	track(d)
	m.opened(&d.channel)
	return d, nil
}

// DatagramConnect brings the cellular link up and binds the socket to
// remote. It returns ErrWouldBlock until the network is registered.
func (m *Modem) DatagramConnect(d *DatagramChannel, remote netip.AddrPort) error {
	m.Lock()
	defer m.Unlock()

	if err := m.beginConnect(&d.channel); err != nil {
		return err
	}
	if err := m.pollRegistration(); err != nil {
		return err
	}
	if err := d.raw.Connect(remote.Addr().String(), remote.Port()); err != nil {
		return err
	}
	d.remote = remote
	m.finishConnect(&d.channel)
	return nil
}

// DatagramIsConnected reports whether the socket is Connected.
func (m *Modem) DatagramIsConnected(d *DatagramChannel) bool {
	m.Lock()
	defer m.Unlock()
	return d.state == StateConnected
}

// DatagramSend sends b as one datagram to the connected peer.
func (m *Modem) DatagramSend(d *DatagramChannel, b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if err := d.checkConnected(); err != nil {
		return 0, err
	}
	n, err := d.raw.Send(b)
	m.metrics.TxBytes += n
	return n, err
}

// DatagramReceive reads one datagram into b and returns its size and the
// peer it came from. It returns ErrWouldBlock when none is pending.
func (m *Modem) DatagramReceive(d *DatagramChannel, b []byte) (int, netip.AddrPort, error) {
	m.Lock()
	defer m.Unlock()

	if err := d.checkConnected(); err != nil {
		return 0, netip.AddrPort{}, err
	}
	n, err := d.raw.Recv(b)
	if err != nil {
		return n, netip.AddrPort{}, err
	}
	m.metrics.RxBytes += n
	return n, d.remote, nil
}

// DatagramClose releases the socket and its cellular reference.
func (m *Modem) DatagramClose(d *DatagramChannel) error {
	m.Lock()
	defer m.Unlock()

	err := m.closeChannel(&d.channel, d.raw)
	if d.released {
		untrack(d)
	}
	return err
}
