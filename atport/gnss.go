package atport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jaracil/nrfmodem"
)

// ErrNoNMEAPort is returned when positioning is started on a driver
// configured without an NMEA port.
var ErrNoNMEAPort = errors.New("no NMEA port")

func (d *Driver) nmeaTask(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 256), maxLineLen)
	sc.Split(scanLines)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		select {
		case d.nmea <- nrfmodem.PositioningData{Sentence: line, Received: time.Now()}:
		default:
			d.logger.Debug("dropping sentence, queue full", "sentence", line)
		}
	}
	if err := sc.Err(); err != nil {
		d.logger.Debug("nmea port read failed", "error", err)
	}
}

// positioningHandle drives the receiver with #XGPS commands and reads its
// sentences from the NMEA port.
type positioningHandle struct {
	d        *Driver
	mu       sync.Mutex
	interval uint16
	retry    uint16
	mask     nrfmodem.NMEAMask
	started  bool
	closed   bool
}

// OpenPositioning allocates a raw positioning receiver handle.
func (d *Driver) OpenPositioning() (nrfmodem.RawPositioning, error) {
	if err := d.alloc("open positioning"); err != nil {
		return nil, err
	}
	return &positioningHandle{d: d, interval: 1}, nil
}

func (p *positioningHandle) SetFixInterval(seconds uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = seconds
	return nil
}

func (p *positioningHandle) SetFixRetry(seconds uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retry = seconds
	return nil
}

// SetNMEAMask selects the sentences returned by Fix. A zero mask passes
// every sentence.
func (p *positioningHandle) SetNMEAMask(mask nrfmodem.NMEAMask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = mask
	return nil
}

func (p *positioningHandle) Start(mask nrfmodem.DeleteMask) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.d.nmea == nil {
		return &nrfmodem.DriverError{Op: "start positioning", Err: ErrNoNMEAPort}
	}
	if p.started {
		return nil
	}
	if err := p.d.Command(fmt.Sprintf("AT#XGPSDEL=%d", mask), nil); err != nil {
		return err
	}
	// Sentences from an earlier session are stale.
	for drained := false; !drained; {
		select {
		case <-p.d.nmea:
		default:
			drained = true
		}
	}
	if err := p.d.Command(fmt.Sprintf("AT#XGPS=1,0,%d,%d", p.interval, p.retry), nil); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *positioningHandle) Fix() (nrfmodem.PositioningData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nrfmodem.PositioningData{}, &nrfmodem.DriverError{Op: "fix", Err: nrfmodem.ErrNotConnected}
	}
	for {
		select {
		case data := <-p.d.nmea:
			if p.mask == 0 || p.mask.Match(data.Sentence) {
				return data, nil
			}
		default:
			return nrfmodem.PositioningData{}, nrfmodem.ErrWouldBlock
		}
	}
}

func (p *positioningHandle) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.d.free()
	if !p.started {
		return nil
	}
	p.started = false
	return p.d.Command("AT#XGPS=0", nil)
}
