package sim

import (
	"context"
	"fmt"
	"math"
	"time"
)

// nmeaTask writes one GGA and one RMC sentence per fix interval until ctx
// is cancelled by #XGPS=0 or a functional mode change.
func (m *Modem) nmeaTask(ctx context.Context) {
	m.Lock()
	period := m.fixPeriod
	if period <= 0 {
		period = time.Duration(m.gpsInterval) * time.Second
	}
	m.Unlock()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		m.Lock()
		if ctx.Err() != nil {
			m.Unlock()
			return
		}
		now := m.clock().UTC()
		for _, s := range []string{ggaSentence(now, m.position), rmcSentence(now, m.position)} {
			if _, err := m.nmea.Write([]byte(s + "\r\n")); err != nil {
				m.logger.Debug("nmea write failed", "id", m.id, "error", err)
				m.Unlock()
				return
			}
			m.metrics.NMEASentences++
		}
		m.Unlock()
	}
}

// nmeaChecksum is the XOR of every byte between '$' and '*'.
func nmeaChecksum(body string) byte {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return c
}

func nmeaFrame(body string) string {
	return fmt.Sprintf("$%s*%02X", body, nmeaChecksum(body))
}

// nmeaCoord formats decimal degrees as (d)ddmm.mmmm plus hemisphere.
func nmeaCoord(deg float64, width int, pos, neg string) (string, string) {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	d := math.Floor(deg)
	mins := (deg - d) * 60
	return fmt.Sprintf("%0*d%07.4f", width, int(d), mins), hemi
}

func ggaSentence(t time.Time, p Position) string {
	lat, ns := nmeaCoord(p.Latitude, 2, "N", "S")
	lon, ew := nmeaCoord(p.Longitude, 3, "E", "W")
	body := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,%02d,0.9,%.1f,M,0.0,M,,",
		t.Format("150405.00"), lat, ns, lon, ew, p.Satellites, p.Altitude)
	return nmeaFrame(body)
}

func rmcSentence(t time.Time, p Position) string {
	lat, ns := nmeaCoord(p.Latitude, 2, "N", "S")
	lon, ew := nmeaCoord(p.Longitude, 3, "E", "W")
	body := fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,0.0,0.0,%s,,,A",
		t.Format("150405.00"), lat, ns, lon, ew, t.Format("020106"))
	return nmeaFrame(body)
}

// formatClock renders t as a +CCLK response. The zone is written in quarter
// hours.
func formatClock(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf(`+CCLK: "%s%c%02d"`, t.Format("06/01/02,15:04:05"), sign, offset/(15*60))
}

// GPSDeleteMask returns the mask received with the last #XGPSDEL.
// The modem lock must be held before calling this method.
func (m *Modem) GPSDeleteMask() int {
	m.checkLock()
	return m.gpsDeleteMask
}

// GPSRunning reports whether the receiver is streaming fixes.
// The modem lock must be held before calling this method.
func (m *Modem) GPSRunning() bool {
	m.checkLock()
	return m.gpsCancel != nil
}

// UICC reports whether the SIM interface is powered.
// The modem lock must be held before calling this method.
func (m *Modem) UICC() bool {
	m.checkLock()
	return m.uicc
}
