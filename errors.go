package nrfmodem

import (
	"errors"
	"fmt"

	"github.com/jaracil/nrfmodem/internal/atcmd"
)

var (
	// ErrWouldBlock is the non-blocking "try again later" outcome. It is not a
	// failure: the caller must re-invoke the operation.
	ErrWouldBlock = errors.New("would block")
	// ErrConfigRequired is returned when a required configuration parameter is missing
	ErrConfigRequired = errors.New("config required")
	// ErrNoHandles is returned by drivers when the raw handle table is exhausted
	ErrNoHandles = errors.New("no free handles")

	// ErrAlreadyOpen is returned when connecting a channel that is already connected
	ErrAlreadyOpen = errors.New("channel already open")
	// ErrNotConnected is returned when using a channel that is not connected
	ErrNotConnected = errors.New("channel not connected")
	// ErrChannelReleased is returned when closing a channel a second time
	ErrChannelReleased = errors.New("channel already released")

	// ErrNoResponse is returned when a command round trip produced no usable response line
	ErrNoResponse = errors.New("no response")
	// ErrUnexpectedResponse is returned when a response has an unexpected shape or value
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrInvalidConfiguration is returned for a system mode whose preference needs a disabled network
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrNotAllowedInActiveState is returned when the system mode is changed while radios are active
	ErrNotAllowedInActiveState = errors.New("not allowed in active state")
	// ErrInvalidBandConfiguration is returned when the modem rejects the band configuration
	ErrInvalidBandConfiguration = errors.New("invalid band configuration")

	// ErrRegistrationDenied is returned when the network denied cellular registration
	ErrRegistrationDenied = errors.New("registration denied")
	// ErrSIMFailure is returned when registration failed because of the SIM
	ErrSIMFailure = errors.New("SIM failure")

	// ErrHostnameTooLong is returned for hostnames longer than MaxHostnameLen
	ErrHostnameTooLong = errors.New("hostname too long")
	// ErrHostnameNotASCII is returned for hostnames containing non-ASCII characters
	ErrHostnameNotASCII = errors.New("hostname not ASCII")
	// ErrAddressNotFound is returned when resolution yields no usable address
	ErrAddressNotFound = errors.New("address not found")
)

// CME error codes remapped to named errors by SetSystemMode.
const (
	cmeNotAllowedInActiveState  = 518
	cmeInvalidBandConfiguration = 522
)

// CommandError is returned when the modem answers a command with ERROR,
// +CME ERROR or +CMS ERROR.
type CommandError = atcmd.CommandError

// ParseError is returned when a response line cannot be parsed.
type ParseError = atcmd.ParseError

// DriverError wraps a failure reported by the native driver. Code is the
// driver's opaque result code and Errno an optional vendor error number.
type DriverError struct {
	Op    string
	Code  int
	Errno int
	Err   error
}

func (e *DriverError) Error() string {
	s := "driver " + e.Op
	if e.Code != 0 {
		s += fmt.Sprintf(" code %d", e.Code)
	}
	if e.Errno != 0 {
		s += fmt.Sprintf(" errno %d", e.Errno)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// BufferTooSmallError is returned when a destination buffer cannot hold the
// pending data. Required is the size needed, or 0 when it is unknown.
type BufferTooSmallError struct {
	Required int
}

func (e *BufferTooSmallError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("buffer too small, %d bytes required", e.Required)
	}
	return "buffer too small"
}
