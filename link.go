package nrfmodem

// LinkChannel is a command session that keeps the cellular link up while it
// is connected. It is the handle to use when an application only needs the
// network registered, for example to read the network clock.
type LinkChannel struct {
	channel
	raw RawCommand
}

// LinkOpen allocates a link channel in state Closed.
func (m *Modem) LinkOpen() (*LinkChannel, error) {
	m.Lock()
	defer m.Unlock()

	raw, err := m.driver.OpenCommand()
	if err != nil {
		return nil, err
	}
	l := &LinkChannel{channel: newChannel(KindLink), raw: raw}
	track(l)
	m.opened(&l.channel)
	return l, nil
}

// LinkConnect takes a cellular reference, powering the link up if needed,
// and returns ErrWouldBlock until the network registration completes.
// Re-invoking it while pending does not take another reference.
func (m *Modem) LinkConnect(l *LinkChannel) error {
	m.Lock()
	defer m.Unlock()

	if err := m.beginConnect(&l.channel); err != nil {
		return err
	}
	if err := m.pollRegistration(); err != nil {
		return err
	}
	m.finishConnect(&l.channel)
	return nil
}

// LinkIsConnected reports whether the channel is Connected.
func (m *Modem) LinkIsConnected(l *LinkChannel) bool {
	m.Lock()
	defer m.Unlock()
	return l.state == StateConnected
}

// LinkSend issues one command over the link channel.
func (m *Modem) LinkSend(l *LinkChannel, cmd string) error {
	m.Lock()
	defer m.Unlock()

	if err := l.checkConnected(); err != nil {
		return err
	}
	if err := l.raw.Send(cmd); err != nil {
		return err
	}
	m.metrics.TxBytes += len(cmd)
	return nil
}

// LinkReceive copies buffered response bytes into b, or returns
// ErrWouldBlock.
func (m *Modem) LinkReceive(l *LinkChannel, b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if err := l.checkConnected(); err != nil {
		return 0, err
	}
	n, err := l.raw.Recv(b)
	m.metrics.RxBytes += n
	return n, err
}

// LinkReadClock reads the network-provided clock.
func (m *Modem) LinkReadClock(l *LinkChannel) (ClockTime, error) {
	m.Lock()
	defer m.Unlock()

	if err := l.checkConnected(); err != nil {
		return ClockTime{}, err
	}
	return m.readClock()
}

// LinkClose releases the channel and its cellular reference. The link is
// powered down when this was the last cellular user.
func (m *Modem) LinkClose(l *LinkChannel) error {
	m.Lock()
	defer m.Unlock()

	err := m.closeChannel(&l.channel, l.raw)
	if l.released {
		untrack(l)
	}
	return err
}
