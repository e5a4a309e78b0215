package nrfmodem

import (
	"fmt"
	"strings"
	"time"
)

const (
	clockIdent = `+CCLK: "`
	// clockLineLen is the length of `+CCLK: "yy/MM/dd,hh:mm:ss+zz"`.
	clockLineLen = 29
)

// ClockTime is the network clock as reported by +CCLK. Year is normalized
// by adding 2000 to the two-digit year the modem reports.
type ClockTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	// Zone is the offset from UTC in quarters of an hour
	Zone int
}

// Time converts the clock reading to a time.Time in a fixed zone.
func (c ClockTime) Time() time.Time {
	offset := c.Zone * 15 * 60
	sign := '+'
	if offset < 0 {
		sign = '-'
	}
	loc := time.FixedZone(fmt.Sprintf("UTC%c%02d:%02d", sign, abs(offset)/3600, abs(offset)%3600/60), offset)
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, c.Second, 0, loc)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d (%+d)", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, c.Zone)
}

func twoDigits(s string) int {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return -1
	}
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// daysIn returns the number of days in month of year.
func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseClock parses a fixed-width `+CCLK: "yy/MM/dd,hh:mm:ss+zz"` line.
func ParseClock(line string) (ClockTime, error) {
	if len(line) != clockLineLen || !strings.HasPrefix(line, clockIdent) || line[clockLineLen-1] != '"' {
		return ClockTime{}, &ParseError{Line: line, Reason: "malformed clock response"}
	}
	var (
		c      ClockTime
		fields = []struct {
			dst      *int
			pos      int
			sep      byte
			min, max int
		}{
			{&c.Year, 8, '/', 0, 99},
			{&c.Month, 11, '/', 1, 12},
			{&c.Day, 14, ',', 1, 31},
			{&c.Hour, 17, ':', 0, 23},
			{&c.Minute, 20, ':', 0, 59},
			{&c.Second, 23, 0, 0, 59},
		}
	)
	for _, f := range fields {
		if f.sep != 0 && line[f.pos+2] != f.sep {
			return ClockTime{}, &ParseError{Line: line, Pos: f.pos + 2, Reason: "malformed clock separator"}
		}
		v := twoDigits(line[f.pos : f.pos+2])
		if v < f.min || v > f.max {
			return ClockTime{}, &ParseError{Line: line, Pos: f.pos, Reason: "malformed clock field"}
		}
		*f.dst = v
	}
	c.Year += 2000
	if c.Day > daysIn(c.Year, c.Month) {
		return ClockTime{}, &ParseError{Line: line, Pos: 14, Reason: "day out of range"}
	}

	sign := line[25]
	zone := twoDigits(line[26:28])
	if zone < 0 || (sign != '+' && sign != '-') {
		return ClockTime{}, &ParseError{Line: line, Pos: 25, Reason: "malformed time zone"}
	}
	if sign == '-' {
		zone = -zone
	}
	c.Zone = zone
	return c, nil
}

// readClock queries the network clock. The lock must be held.
func (m *Modem) readClock() (ClockTime, error) {
	var (
		c        ClockTime
		seen     bool
		parseErr error
	)
	err := m.command(cmdClockQuery, func(line string) {
		if seen || !strings.HasPrefix(line, "+CCLK:") {
			return
		}
		seen = true
		c, parseErr = ParseClock(line)
	})
	if err != nil {
		return ClockTime{}, err
	}
	if !seen {
		return ClockTime{}, ErrNoResponse
	}
	return c, parseErr
}
