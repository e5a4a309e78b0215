// Package atport implements the nrfmodem driver for a modem reached over a
// serial AT command port, with the data path carried by the host network
// stack (the modem exposes a network interface once the link is up).
//
// A reader goroutine splits the command port into lines; Command writes one
// command and collects its response until the final result. Stream and
// datagram handles dial through the host network without blocking, and the
// positioning handle reads NMEA sentences from an optional second port.
package atport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jaracil/nrfmodem"
	"github.com/jaracil/nrfmodem/internal/atcmd"
	"go.bug.st/serial"
)

const (
	// DefaultTimeout bounds one command round trip
	DefaultTimeout = 5 * time.Second
	// DefaultMaxHandles is the size of the raw handle table
	DefaultMaxHandles = 8
	// DefaultBaudRate is the usual command port speed
	DefaultBaudRate = 115200

	lineQueueLen = 64
	maxLineLen   = 4096
)

// ErrPortClosed is returned once the command port has been closed.
var ErrPortClosed = errors.New("command port closed")

// Config contains the configuration parameters for a serial driver.
// Port is required, the other fields have reasonable defaults.
type Config struct {
	// Port is the command port (required)
	Port io.ReadWriteCloser
	// NMEA is an optional port carrying NMEA sentences from the receiver
	NMEA io.Reader
	// Timeout bounds a command round trip (default: DefaultTimeout)
	Timeout time.Duration
	// DialTimeout bounds a stream connect (default: Timeout)
	DialTimeout time.Duration
	// MaxHandles is the number of raw handles that may be open at once (default: DefaultMaxHandles)
	MaxHandles int
	// Resolver is the host resolver used for name lookups (default: net.DefaultResolver)
	Resolver *net.Resolver
	// Logger receives debug records; nil discards them
	Logger *slog.Logger
}

// Driver talks to the modem over its AT command port. It implements
// nrfmodem.Driver and nrfmodem.Resolver.
type Driver struct {
	cmdMu       sync.Mutex
	port        io.ReadWriteCloser
	lines       chan string
	timeout     time.Duration
	dialTimeout time.Duration
	resolver    *net.Resolver
	logger      *slog.Logger
	nmea        chan nrfmodem.PositioningData

	mu         sync.Mutex
	handles    int
	maxHandles int
	closed     bool
}

// OpenSerial opens a serial command port with 8N1 framing.
func OpenSerial(name string, baudRate int) (serial.Port, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// New starts a driver on config.Port. It switches command echo off before
// returning.
//
// Returns nrfmodem.ErrConfigRequired if config is nil or has no Port.
func New(config *Config) (*Driver, error) {
	if config == nil || config.Port == nil {
		return nil, nrfmodem.ErrConfigRequired
	}
	d := &Driver{
		port:        config.Port,
		lines:       make(chan string, lineQueueLen),
		timeout:     config.Timeout,
		dialTimeout: config.DialTimeout,
		resolver:    config.Resolver,
		logger:      config.Logger,
		maxHandles:  config.MaxHandles,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.dialTimeout <= 0 {
		d.dialTimeout = d.timeout
	}
	if d.maxHandles <= 0 {
		d.maxHandles = DefaultMaxHandles
	}
	if d.resolver == nil {
		d.resolver = net.DefaultResolver
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	go d.readTask()
	if config.NMEA != nil {
		d.nmea = make(chan nrfmodem.PositioningData, lineQueueLen)
		go d.nmeaTask(config.NMEA)
	}

	if err := d.Command("ATE0", nil); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// scanLines splits on CR, LF or CRLF and drops empty lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

func (d *Driver) readTask() {
	defer close(d.lines)
	sc := bufio.NewScanner(d.port)
	sc.Buffer(make([]byte, 256), maxLineLen)
	sc.Split(scanLines)
	for sc.Scan() {
		line := sc.Text()
		select {
		case d.lines <- line:
		default:
			d.logger.Debug("dropping line, queue full", "line", line)
		}
	}
	if err := sc.Err(); err != nil {
		d.logger.Debug("command port read failed", "error", err)
	}
}

// Command sends one command and waits for its final result. Lines echoing
// the command are skipped; unsolicited lines left over from earlier are
// discarded before sending.
func (d *Driver) Command(cmd string, onLine func(line string)) error {
	_, err := d.roundTrip(cmd, onLine)
	return err
}

// roundTrip is Command returning the final result line too.
func (d *Driver) roundTrip(cmd string, onLine func(line string)) (string, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	for drained := false; !drained; {
		select {
		case line, ok := <-d.lines:
			if !ok {
				return "", &nrfmodem.DriverError{Op: "command", Err: ErrPortClosed}
			}
			d.logger.Debug("unsolicited", "line", line)
		default:
			drained = true
		}
	}

	if _, err := io.WriteString(d.port, cmd+"\r\n"); err != nil {
		return "", &nrfmodem.DriverError{Op: "command", Err: err}
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-d.lines:
			if !ok {
				return "", &nrfmodem.DriverError{Op: "command", Err: ErrPortClosed}
			}
			if line == cmd {
				continue
			}
			if final, err := atcmd.Final(cmd, line); final {
				return line, err
			}
			if onLine != nil {
				onLine(line)
			}
		case <-timer.C:
			d.logger.Debug("command timed out", "cmd", cmd)
			return "", nrfmodem.ErrNoResponse
		}
	}
}

func (d *Driver) alloc(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &nrfmodem.DriverError{Op: op, Err: ErrPortClosed}
	}
	if d.handles >= d.maxHandles {
		return &nrfmodem.DriverError{Op: op, Code: -1, Err: nrfmodem.ErrNoHandles}
	}
	d.handles++
	return nil
}

func (d *Driver) free() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles--
}

// Handles returns the number of raw handles currently open.
func (d *Driver) Handles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handles
}

// Close closes the command port. Pending and later commands fail with
// ErrPortClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.port.Close()
}

// LookupHost resolves hostname through the host resolver. Every address is
// returned; the hint only orders the lookup, the caller picks the family.
func (d *Driver) LookupHost(hostname string, hint nrfmodem.Family) ([]nrfmodem.AddrRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	addrs, err := d.resolver.LookupNetIP(ctx, "ip", hostname)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, nil
		}
		return nil, &nrfmodem.DriverError{Op: "lookup", Err: err}
	}
	records := make([]nrfmodem.AddrRecord, 0, len(addrs))
	for _, a := range addrs {
		a = a.Unmap()
		fam := nrfmodem.FamilyV6
		if a.Is4() {
			fam = nrfmodem.FamilyV4
		}
		records = append(records, nrfmodem.AddrRecord{Family: fam, Addr: a})
	}
	d.logger.Debug("lookup", "host", hostname, "hint", hint.String(), "records", len(records))
	return records, nil
}
