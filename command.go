package nrfmodem

// CommandChannel is a diagnostic session on the modem command interface. It
// does not hold any subsystem up.
type CommandChannel struct {
	channel
	raw RawCommand
}

// CommandOpen allocates a command channel in state Closed.
func (m *Modem) CommandOpen() (*CommandChannel, error) {
	m.Lock()
	defer m.Unlock()

	raw, err := m.driver.OpenCommand()
	if err != nil {
		return nil, err
	}
	c := &CommandChannel{channel: newChannel(KindCommand), raw: raw}
	track(c)
	m.opened(&c.channel)
	return c, nil
}

// CommandConnect moves the channel to Connected. No power sequencing is
// involved, so it never returns ErrWouldBlock.
func (m *Modem) CommandConnect(c *CommandChannel) error {
	m.Lock()
	defer m.Unlock()

	if err := m.beginConnect(&c.channel); err != nil {
		return err
	}
	m.finishConnect(&c.channel)
	return nil
}

// CommandIsConnected reports whether the channel is Connected.
func (m *Modem) CommandIsConnected(c *CommandChannel) bool {
	m.Lock()
	defer m.Unlock()
	return c.state == StateConnected
}

// CommandSend issues one command; its response is read back with
// CommandPollResponse or CommandReceive.
func (m *Modem) CommandSend(c *CommandChannel, cmd string) error {
	m.Lock()
	defer m.Unlock()

	if err := c.checkConnected(); err != nil {
		return err
	}
	if err := c.raw.Send(cmd); err != nil {
		return err
	}
	m.metrics.TxBytes += len(cmd)
	return nil
}

// CommandSendRaw writes preformatted bytes to the command interface.
func (m *Modem) CommandSendRaw(c *CommandChannel, data []byte) error {
	m.Lock()
	defer m.Unlock()

	if err := c.checkConnected(); err != nil {
		return err
	}
	if err := c.raw.Write(data); err != nil {
		return err
	}
	m.metrics.TxBytes += len(data)
	return nil
}

// CommandPollResponse hands every buffered response line to fn.
func (m *Modem) CommandPollResponse(c *CommandChannel, fn func(line string)) error {
	m.Lock()
	defer m.Unlock()

	if err := c.checkConnected(); err != nil {
		return err
	}
	return c.raw.PollResponse(func(line string) {
		m.metrics.RxBytes += len(line)
		fn(line)
	})
}

// CommandReceive copies buffered response bytes into b. It returns
// ErrWouldBlock when nothing is pending and a *BufferTooSmallError when the
// next response does not fit.
func (m *Modem) CommandReceive(c *CommandChannel, b []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if err := c.checkConnected(); err != nil {
		return 0, err
	}
	n, err := c.raw.Recv(b)
	m.metrics.RxBytes += n
	return n, err
}

// CommandClose releases the channel. Closing twice returns
// ErrChannelReleased.
func (m *Modem) CommandClose(c *CommandChannel) error {
	m.Lock()
	defer m.Unlock()

	err := m.closeChannel(&c.channel, c.raw)
	if c.released {
		untrack(c)
	}
	return err
}
