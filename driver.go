package nrfmodem

import (
	"net/netip"
)

// Driver is the native modem service. The Modem is its only caller and never
// calls it concurrently.
type Driver interface {
	// Command sends one command line and blocks until its final result.
	// onLine receives every intermediate response line. A final ERROR,
	// +CME ERROR or +CMS ERROR is reported as a *CommandError.
	Command(cmd string, onLine func(line string)) error
	// OpenCommand allocates a raw command channel.
	OpenCommand() (RawCommand, error)
	// OpenStream allocates a raw stream (TCP) socket.
	OpenStream() (RawSocket, error)
	// OpenDatagram allocates a raw datagram (UDP) socket.
	OpenDatagram() (RawSocket, error)
	// OpenPositioning allocates a raw positioning receiver handle.
	OpenPositioning() (RawPositioning, error)
}

// RawCommand is a raw channel to the modem command interface.
type RawCommand interface {
	// Send issues one command; its response lines are buffered for
	// PollResponse and Recv.
	Send(cmd string) error
	// Write sends raw bytes, for example a preformatted command.
	Write(data []byte) error
	// PollResponse hands every buffered response line to fn and consumes them.
	PollResponse(fn func(line string)) error
	// Recv copies buffered response bytes into b. It returns ErrWouldBlock
	// when nothing is buffered.
	Recv(b []byte) (int, error)
	Close() error
}

// RawSocket is a raw network socket. Connect, Send and Recv never block:
// they return ErrWouldBlock when the operation cannot complete yet.
type RawSocket interface {
	Connect(ip string, port uint16) error
	Send(b []byte) (int, error)
	Recv(b []byte) (int, error)
	Close() error
}

// RawPositioning is a raw positioning receiver handle.
type RawPositioning interface {
	SetFixInterval(seconds uint16) error
	SetFixRetry(seconds uint16) error
	SetNMEAMask(mask NMEAMask) error
	Start(mask DeleteMask) error
	// Fix returns the next positioning record or ErrWouldBlock.
	Fix() (PositioningData, error)
	Close() error
}

// Family selects the address family of a name lookup.
type Family int

const (
	// FamilyEither accepts any family, preferring IPv4
	FamilyEither Family = iota
	// FamilyV4 prefers IPv4
	FamilyV4
	// FamilyV6 prefers IPv6
	FamilyV6
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyEither:
		return "Either"
	case FamilyV4:
		return "V4"
	case FamilyV6:
		return "V6"
	default:
		return "Unknown"
	}
}

// AddrRecord is one resolver result.
type AddrRecord struct {
	Family Family
	Addr   netip.Addr
}

// Resolver is the address-info lookup service.
type Resolver interface {
	LookupHost(hostname string, hint Family) ([]AddrRecord, error)
}
