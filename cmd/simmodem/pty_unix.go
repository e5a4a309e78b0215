//go:build linux || darwin

package main

import (
	"errors"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// UnixPty is a POSIX compliant Unix pseudo-terminal. The simulated modem
// owns the master; host software opens the slave by name.
type UnixPty struct {
	master, slave *os.File
	closed        bool
}

// Close implements Pty.
func (p *UnixPty) Close() error {
	if p.closed {
		return nil
	}
	defer func() {
		p.closed = true
	}()
	return errors.Join(p.master.Close(), p.slave.Close())
}

// Name implements Pty.
func (p *UnixPty) Name() string {
	return p.slave.Name()
}

// Read implements Pty.
func (p *UnixPty) Read(b []byte) (n int, err error) {
	return p.master.Read(b)
}

// Write implements Pty.
func (p *UnixPty) Write(b []byte) (n int, err error) {
	return p.master.Write(b)
}

// Master returns the modem side of the terminal.
func (p *UnixPty) Master() *os.File {
	return p.master
}

// Slave returns the host side of the terminal.
func (p *UnixPty) Slave() *os.File {
	return p.slave
}

// Fd returns the master file descriptor.
func (p *UnixPty) Fd() uintptr {
	return p.master.Fd()
}

// makeRaw puts the slave in raw mode, like a serial line. Otherwise the line
// discipline would echo modem output back as input and rewrite CR and LF.
func (p *UnixPty) makeRaw() error {
	conn, err := p.slave.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	err = conn.Control(func(fd uintptr) {
		t, err := unix.IoctlGetTermios(int(fd), ioctlGetTermios)
		if err != nil {
			opErr = err
			return
		}
		t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
		t.Oflag &^= unix.OPOST
		t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
		t.Cflag &^= unix.CSIZE | unix.PARENB
		t.Cflag |= unix.CS8
		t.Cc[unix.VMIN] = 1
		t.Cc[unix.VTIME] = 0
		opErr = unix.IoctlSetTermios(int(fd), ioctlSetTermios, t)
	})
	return errors.Join(err, opErr)
}

// NewPty creates a new UnixPty with its slave in raw mode.
func NewPty() (*UnixPty, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}

	p := &UnixPty{
		master: master,
		slave:  slave,
	}
	if err := p.makeRaw(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func openTTY() (ttyDevice, error) {
	return NewPty()
}
