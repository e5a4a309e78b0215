// Package sim provides a simulated cellular/positioning modem that answers
// the AT command set the nrfmodem serial driver speaks. It reads command
// lines from a TTY (a pseudo-terminal or any io.ReadWriteCloser), tracks the
// radio functional mode and registration, and streams NMEA sentences while
// the positioning receiver runs.
//
// The core component is the Modem struct which implements a state machine
// with the following states: Off, Cellular, Positioning, Full and Closed.
// Commands can be intercepted with line and command hooks.
//
// Example usage:
//
//	m, err := sim.NewModem(&sim.Config{
//		Id:   "sim0",
//		TTY:  tty,
//		NMEA: nmeaTTY,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.CloseSync()
package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrConfigRequired is returned when a required configuration parameter is missing
	ErrConfigRequired = errors.New("config required")
	// ErrInvalidStateTransition is returned when an invalid state transition is attempted
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// CME error codes reported by the simulator.
const (
	CmeNotAllowed               = 3
	CmeNotAllowedInActiveState  = 518
	CmeInvalidBandConfiguration = 522
)

// Registration status values reported in +CEREG.
const (
	RegNotSearching = 0
	RegHome         = 1
	RegSearching    = 2
	RegDenied       = 3
	RegRoaming      = 5
	RegUICCFailure  = 90
)

// ModemStatus is the radio functional mode of the simulated modem.
type ModemStatus int

const (
	// StatusOff means every radio is deactivated
	StatusOff ModemStatus = iota
	// StatusCellular means only the cellular radio is active
	StatusCellular
	// StatusPositioning means only the positioning receiver is active
	StatusPositioning
	// StatusFull means the cellular radio and the positioning receiver are active
	StatusFull
	// StatusClosed is the terminal state where the modem is permanently closed
	StatusClosed
)

// String returns a human-readable string representation of the modem status.
func (ms ModemStatus) String() string {
	switch ms {
	case StatusOff:
		return "Off"
	case StatusCellular:
		return "Cellular"
	case StatusPositioning:
		return "Positioning"
	case StatusFull:
		return "Full"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Cellular reports whether the cellular radio is active.
func (ms ModemStatus) Cellular() bool {
	return ms == StatusCellular || ms == StatusFull
}

// Positioning reports whether the positioning receiver is active.
func (ms ModemStatus) Positioning() bool {
	return ms == StatusPositioning || ms == StatusFull
}

func statusOf(cellular, positioning bool) ModemStatus {
	switch {
	case cellular && positioning:
		return StatusFull
	case cellular:
		return StatusCellular
	case positioning:
		return StatusPositioning
	default:
		return StatusOff
	}
}

// RetCode represents the result code of AT command processing.
type RetCode int

const (
	// RetCodeOk indicates successful command execution
	RetCodeOk RetCode = iota
	// RetCodeError indicates command execution failed
	RetCodeError
	// RetCodeCmeError indicates a failure reported as +CME ERROR with the code set by SetCmeError
	RetCodeCmeError
	// RetCodeSilent indicates no response should be sent
	RetCodeSilent
	// RetCodeSkip indicates the command should be skipped and processed by default handler
	RetCodeSkip
	// RetCodeUnknown indicates an unrecognized return code
	RetCodeUnknown
)

// CmdReturnFromString converts a string representation of a modem response
// to its corresponding RetCode. It performs case-insensitive matching.
func CmdReturnFromString(s string) RetCode {
	switch strings.ToUpper(s) {
	case "OK":
		return RetCodeOk
	case "ERROR":
		return RetCodeError
	case "CME ERROR":
		return RetCodeCmeError
	case "SILENT":
		return RetCodeSilent
	case "SKIP":
		return RetCodeSkip
	default:
		return RetCodeUnknown
	}
}

// SystemMode is the %XSYSTEMMODE setting.
type SystemMode struct {
	LTE        bool
	NBIoT      bool
	GNSS       bool
	Preference int
}

// Position is the fix reported in the simulated NMEA stream.
type Position struct {
	// Latitude in decimal degrees, north positive
	Latitude float64
	// Longitude in decimal degrees, east positive
	Longitude float64
	// Altitude above mean sea level in meters
	Altitude float64
	// Satellites is the number of satellites used in the fix
	Satellites int
}

// Modem represents a simulated cellular/positioning modem attached to a TTY.
//
// The modem is thread-safe and uses a mutex to protect internal state.
// Most operations require the caller to hold the modem lock, with Sync variants
// available for convenience that acquire and release the lock automatically.
type Modem struct {
	sync.Mutex
	st               ModemStatus
	stCtx            context.Context
	stCtxCancel      context.CancelFunc
	gpsCancel        context.CancelFunc
	id               string
	tty              io.ReadWriteCloser
	nmea             io.Writer
	statusTransition StatusTransitionType
	commandHook      CommandHookType
	lineHook         LineHookType
	logger           *slog.Logger
	clock            func() time.Time
	echo             bool
	quietMode        bool
	cmeCode          int
	sysMode          SystemMode
	uicc             bool
	regReport        int
	regStatus        int
	reg              int
	regDelay         time.Duration
	settings         map[string]string
	gpsInterval      int
	gpsDeleteMask    int
	fixPeriod        time.Duration
	position         Position
	metrics          *Metrics
}

// StatusTransitionType defines a callback function that is called whenever the modem
// changes state. It receives the modem instance and both the previous and new status.
type StatusTransitionType func(m *Modem, prevStatus ModemStatus, newStatus ModemStatus)

// CommandHookType defines a callback function for handling custom AT commands.
// It receives the modem instance, command name, numeric parameter, and flags
// indicating if it's an assignment or query. It should return a RetCode indicating
// how the command should be processed.
type CommandHookType func(m *Modem, cmdChar string, cmdNum string, cmdAssign bool, cmdQuery bool, cmdAssignVal string) RetCode

// LineHookType defines a callback function for handling complete command lines.
// It receives the modem instance and the complete command line. It should return
// a RetCode indicating how the line should be processed.
type LineHookType func(m *Modem, line string) RetCode

// Config contains the configuration parameters for creating a new simulated modem.
// The TTY field is required, while other fields have reasonable defaults.
type Config struct {
	// Id is a unique identifier for the modem instance
	Id string
	// TTY is the command interface (required)
	TTY io.ReadWriteCloser
	// NMEA receives NMEA sentences while the receiver runs; nil discards them
	NMEA io.Writer
	// CommandHook is an optional callback for handling custom AT commands
	CommandHook CommandHookType
	// LineHook is an optional callback for handling complete command lines
	LineHook LineHookType
	// StatusTransition is an optional callback for status change notifications
	StatusTransition StatusTransitionType
	// Logger receives debug records; nil discards them
	Logger *slog.Logger
	// Clock supplies the network time reported by +CCLK (default: time.Now)
	Clock func() time.Time
	// RegistrationDelay is how long the network takes to register after the
	// cellular radio is activated; meanwhile +CEREG reports searching
	RegistrationDelay time.Duration
	// RegistrationStatus is reported once registration completes (default: RegHome)
	RegistrationStatus int
	// FixPeriod overrides the fix interval requested with #XGPS
	FixPeriod time.Duration
	// Position is the simulated fix
	Position Position
}

// Metrics contains runtime statistics for a simulated modem.
// All counters are cumulative totals since the modem was created.
type Metrics struct {
	// Status is the current operational status of the modem
	Status ModemStatus
	// TtyTxBytes is the total number of bytes transmitted to the TTY
	TtyTxBytes int
	// TtyRxBytes is the total number of bytes received from the TTY
	TtyRxBytes int
	// Commands is the number of command lines processed
	Commands int
	// CommandErrors is the number of command lines answered with an error
	CommandErrors int
	// CellularActivations is the number of times the cellular radio was activated
	CellularActivations int
	// PositioningActivations is the number of times the receiver was activated
	PositioningActivations int
	// NMEASentences is the number of NMEA sentences written
	NMEASentences int
	// LastTtyTxTime is the timestamp of the last TTY transmission
	LastTtyTxTime time.Time
	// LastTtyRxTime is the timestamp of the last TTY reception
	LastTtyRxTime time.Time
	// LastAtCmdTime is the timestamp of the last AT command processed
	LastAtCmdTime time.Time
}

func checkValidCmdChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func checkValidNumChar(b byte) bool {
	return (b >= '0' && b <= '9')
}

func (m *Modem) checkLock() {
	if m.TryLock() {
		panic("Modem lock not held")
	}
}

func (m *Modem) ttyWrite(b []byte) {
	m.metrics.LastTtyTxTime = time.Now()
	n, err := m.tty.Write(b)
	if err != nil || n == 0 {
		m.setStatus(StatusClosed)
		return
	}
	m.metrics.TtyTxBytes += n
}

func (m *Modem) ttyWriteStr(s string) {
	m.ttyWrite([]byte(s))
}

// TtyWriteStr writes a string to the TTY device.
// The modem lock must be held before calling this method.
// Use TtyWriteStrSync for automatic lock management.
func (m *Modem) TtyWriteStr(s string) {
	m.checkLock()
	m.ttyWriteStr(s)
}

// TtyWriteStrSync writes a string to the TTY device with automatic lock management.
func (m *Modem) TtyWriteStrSync(s string) {
	m.Lock()
	defer m.Unlock()
	m.ttyWriteStr(s)
}

// Id returns the unique identifier of the modem instance.
func (m *Modem) Id() string {
	return m.id
}

func (m *Modem) info(line string) {
	m.ttyWriteStr("\r\n" + line + "\r\n")
}

// Info writes an information response line, framed like the built-in
// responses. It is meant for command hooks.
// The modem lock must be held before calling this method.
func (m *Modem) Info(line string) {
	m.checkLock()
	m.info(line)
}

// SetCmeError selects the code reported by the next RetCodeCmeError.
// The modem lock must be held before calling this method.
func (m *Modem) SetCmeError(code int) {
	m.checkLock()
	m.cmeCode = code
}

func (m *Modem) cmeError(code int) RetCode {
	m.cmeCode = code
	return RetCodeCmeError
}

func (m *Modem) printRetCode(ret RetCode) {
	retStr := ""
	switch ret {
	case RetCodeSilent, RetCodeSkip:
		return
	case RetCodeOk:
		retStr = "OK"
	case RetCodeCmeError:
		retStr = fmt.Sprintf("+CME ERROR: %d", m.cmeCode)
	default:
		retStr = "ERROR"
	}
	if ret != RetCodeOk {
		m.metrics.CommandErrors++
	}
	if !m.quietMode {
		// Write directly to TTY without error handling to avoid recursion during state transitions
		_, _ = m.tty.Write([]byte("\r\n" + retStr + "\r\n"))
	}
}

// SetStatus changes the modem's functional mode.
// The modem lock must be held before calling this method.
// Use SetStatusSync for automatic lock management.
func (m *Modem) SetStatus(status ModemStatus) {
	m.checkLock()
	m.setStatus(status)
}

// SetStatusSync changes the modem's functional mode with automatic lock management.
func (m *Modem) SetStatusSync(status ModemStatus) {
	m.Lock()
	defer m.Unlock()
	m.setStatus(status)
}

func (m *Modem) setStatus(status ModemStatus) {
	prevStatus := m.st
	if prevStatus == status {
		return
	}
	if prevStatus == StatusClosed {
		panic(ErrInvalidStateTransition)
	}
	m.stCtxCancel()
	m.stCtx, m.stCtxCancel = context.WithCancel(context.Background())
	// The receiver stops on every mode change; the host restarts it with #XGPS.
	m.gpsCancel = nil
	m.st = status
	m.logger.Debug("status transition", "id", m.id, "prev", prevStatus.String(), "next", status.String())

	switch {
	case status == StatusClosed:
		m.tty.Close()
	case status.Cellular() && !prevStatus.Cellular():
		m.metrics.CellularActivations++
		m.reg = RegSearching
		if m.regDelay <= 0 {
			m.reg = m.regStatus
		} else {
			go m.registrar(m.stCtx)
		}
	case !status.Cellular():
		m.reg = RegNotSearching
	}
	if status.Positioning() && !prevStatus.Positioning() {
		m.metrics.PositioningActivations++
	}
	if m.statusTransition != nil {
		m.statusTransition(m, prevStatus, status)
	}
}

func (m *Modem) status() ModemStatus {
	return m.st
}

// Status returns the current functional mode of the modem.
// The modem lock must be held before calling this method.
// Use StatusSync for automatic lock management.
func (m *Modem) Status() ModemStatus {
	m.checkLock()
	return m.status()
}

// StatusSync returns the current functional mode with automatic lock management.
func (m *Modem) StatusSync() ModemStatus {
	m.Lock()
	defer m.Unlock()
	return m.status()
}

// SetRegistration forces the status reported by +CEREG while the cellular
// radio is active.
// The modem lock must be held before calling this method.
// Use SetRegistrationSync for automatic lock management.
func (m *Modem) SetRegistration(stat int) {
	m.checkLock()
	m.regStatus = stat
	if m.st.Cellular() {
		m.reg = stat
	}
}

// SetRegistrationSync forces the registration status with automatic lock management.
func (m *Modem) SetRegistrationSync(stat int) {
	m.Lock()
	defer m.Unlock()
	m.SetRegistration(stat)
}

// Setting returns the last value assigned to a plain setting command such as
// "+CPSMS" or "%XDATAPRFL", and whether it was ever set.
// The modem lock must be held before calling this method.
func (m *Modem) Setting(name string) (string, bool) {
	m.checkLock()
	v, ok := m.settings[name]
	return v, ok
}

// SettingSync returns a setting with automatic lock management.
func (m *Modem) SettingSync(name string) (string, bool) {
	m.Lock()
	defer m.Unlock()
	return m.Setting(name)
}

// SystemMode returns the current %XSYSTEMMODE setting.
// The modem lock must be held before calling this method.
func (m *Modem) SystemMode() SystemMode {
	m.checkLock()
	return m.sysMode
}

func (m *Modem) close() {
	m.setStatus(StatusClosed)
}

// Close terminates the modem and closes all associated resources.
// The modem lock must be held before calling this method.
// Use CloseSync for automatic lock management.
func (m *Modem) Close() {
	m.checkLock()
	m.close()
}

// CloseSync terminates the modem and closes all associated resources with automatic lock management.
func (m *Modem) CloseSync() {
	m.Lock()
	defer m.Unlock()
	m.close()
}

func (m *Modem) registrar(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.regDelay):
	}
	m.Lock()
	defer m.Unlock()
	if ctx.Err() != nil || !m.status().Cellular() {
		return
	}
	m.reg = m.regStatus
	m.logger.Debug("network registration", "id", m.id, "stat", m.reg)
}

func (m *Modem) setFunctionalMode(mode int) RetCode {
	cellular, positioning := m.st.Cellular(), m.st.Positioning()
	switch mode {
	case 0, 4:
		cellular, positioning = false, false
	case 1:
		cellular = m.sysMode.LTE || m.sysMode.NBIoT
		positioning = m.sysMode.GNSS
	case 20:
		cellular = false
	case 21:
		if !m.sysMode.LTE && !m.sysMode.NBIoT {
			return RetCodeError
		}
		cellular = true
		m.uicc = true
	case 30:
		positioning = false
	case 31:
		if !m.sysMode.GNSS {
			return RetCodeError
		}
		positioning = true
	case 40:
		m.uicc = false
		return RetCodeOk
	case 41:
		m.uicc = true
		return RetCodeOk
	default:
		return RetCodeError
	}
	if mode == 0 || mode == 1 || mode == 4 {
		m.uicc = mode == 1
	}
	m.setStatus(statusOf(cellular, positioning))
	return RetCodeOk
}

func (m *Modem) functionalMode() int {
	switch m.st {
	case StatusFull:
		return 1
	case StatusCellular:
		return 21
	case StatusPositioning:
		return 31
	default:
		return 0
	}
}

func parseInts(val string) ([]int, bool) {
	var out []int
	for _, f := range strings.Split(val, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func (m *Modem) processExtended(name string, cmdAssign bool, cmdQuery bool, val string) RetCode {
	switch name {
	case "+CFUN":
		if cmdQuery {
			m.info(fmt.Sprintf("+CFUN: %d", m.functionalMode()))
			return RetCodeOk
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return RetCodeError
		}
		return m.setFunctionalMode(n)
	case "+CEREG":
		if cmdQuery {
			m.info(fmt.Sprintf("+CEREG: %d,%d", m.regReport, m.reg))
			return RetCodeOk
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 || n > 5 {
			return RetCodeError
		}
		m.regReport = n
	case "+CCLK":
		if !cmdQuery {
			return RetCodeError
		}
		if !m.st.Cellular() || m.reg != RegHome && m.reg != RegRoaming {
			return m.cmeError(CmeNotAllowed)
		}
		m.info(formatClock(m.clock()))
	case "%XSYSTEMMODE":
		if cmdQuery {
			s := m.sysMode
			m.info(fmt.Sprintf("%%XSYSTEMMODE: %d,%d,%d,%d", b2i(s.LTE), b2i(s.NBIoT), b2i(s.GNSS), s.Preference))
			return RetCodeOk
		}
		v, ok := parseInts(val)
		if !ok || len(v) != 4 {
			return RetCodeError
		}
		if m.st != StatusOff {
			return m.cmeError(CmeNotAllowedInActiveState)
		}
		if v[0] == 0 && v[1] == 0 && v[2] == 0 || v[3] < 0 || v[3] > 4 {
			return m.cmeError(CmeInvalidBandConfiguration)
		}
		m.sysMode = SystemMode{LTE: v[0] != 0, NBIoT: v[1] != 0, GNSS: v[2] != 0, Preference: v[3]}
	case "%XDATAPRFL", "+CEPPI", "+CPSMS":
		if cmdQuery {
			m.info(fmt.Sprintf("%s: %s", name, m.settings[name]))
			return RetCodeOk
		}
		if _, ok := parseInts(val); !ok {
			return RetCodeError
		}
		m.settings[name] = val
	case "#XGPSDEL":
		v, ok := parseInts(val)
		if !ok || len(v) != 1 || v[0] < 0 {
			return RetCodeError
		}
		m.gpsDeleteMask = v[0]
	case "#XGPS":
		return m.processGPS(cmdQuery, val)
	default:
		return RetCodeError
	}
	return RetCodeOk
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (m *Modem) processGPS(cmdQuery bool, val string) RetCode {
	if cmdQuery {
		m.info(fmt.Sprintf("#XGPS: 1,%d", b2i(m.gpsCancel != nil)))
		return RetCodeOk
	}
	v, ok := parseInts(val)
	if !ok || len(v) == 0 {
		return RetCodeError
	}
	switch v[0] {
	case 0:
		if m.gpsCancel != nil {
			m.gpsCancel()
			m.gpsCancel = nil
		}
		return RetCodeOk
	case 1:
		if !m.st.Positioning() || m.gpsCancel != nil {
			return RetCodeError
		}
		m.gpsInterval = 1
		if len(v) > 2 && v[2] > 0 {
			m.gpsInterval = v[2]
		}
		var ctx context.Context
		ctx, m.gpsCancel = context.WithCancel(m.stCtx)
		go m.nmeaTask(ctx)
		return RetCodeOk
	default:
		return RetCodeError
	}
}

func (m *Modem) processCommand(cmdChar string, cmdNum string, cmdAssign bool, cmdQuery bool, cmdAssignVal string) RetCode {
	if m.commandHook != nil {
		r := m.commandHook(m, cmdChar, cmdNum, cmdAssign, cmdQuery, cmdAssignVal)
		if r != RetCodeSkip {
			return r
		}
	}
	if len(cmdChar) > 1 && (cmdChar[0] == '+' || cmdChar[0] == '%' || cmdChar[0] == '#') {
		return m.processExtended(cmdChar, cmdAssign, cmdQuery, cmdAssignVal)
	}
	switch cmdChar {
	case "E":
		n, _ := strconv.Atoi(cmdNum)
		switch n {
		case 0:
			m.echo = false
		case 1:
			m.echo = true
		default:
			return RetCodeError
		}
	case "Q":
		n, _ := strconv.Atoi(cmdNum)
		switch n {
		case 0:
			m.quietMode = false
		case 1:
			m.quietMode = true
		default:
			return RetCodeError
		}
	case "Z":
		m.echo = true
		m.quietMode = false
	default:
		return RetCodeError
	}
	return RetCodeOk
}

func (m *Modem) processAtCommand(cmd string) RetCode {
	if m.status() == StatusClosed {
		return RetCodeError
	}
	m.metrics.Commands++
	m.metrics.LastAtCmdTime = time.Now()
	m.logger.Debug("command", "id", m.id, "line", "AT"+cmd)
	if m.lineHook != nil {
		r := m.lineHook(m, cmd)
		if r != RetCodeSkip {
			return r
		}
	}
	cmdBuf := bytes.NewBufferString(cmd)
	cmdRet := RetCodeOk
	e := false
	for cmdBuf.Len() > 0 && !e {
		cmdChar := ""
		cmdNum := ""
		cmdLong := false
		cmdAssign := false
		cmdQuery := false
		cmdAssignVal := ""

		for cmdBuf.Len() > 0 && !e {
			b, err := cmdBuf.ReadByte()
			if err != nil {
				e = true
				break
			}

			if b == '?' {
				if cmdChar != "" {
					cmdQuery = true
					break
				} else {
					e = true
					break
				}
			}

			if cmdAssign {
				if !cmdLong && !checkValidNumChar(b) { // short command only accepts numbers
					cmdBuf.UnreadByte()
					break
				}
				cmdAssignVal += string(b)
				continue
			}

			if b == '+' || b == '#' || b == '%' {
				if cmdChar == "" {
					cmdLong = true
					cmdChar += string(b)
					continue
				} else {
					e = true
					break
				}
			}

			if b == '=' {
				if cmdChar != "" {
					cmdAssign = true
					continue
				} else {
					e = true
					break
				}
			}

			if cmdLong {
				if checkValidCmdChar(b) {
					cmdChar += string(b)
					continue
				} else {
					e = true
					break
				}
			}

			if cmdChar == "" {
				if checkValidCmdChar(b) {
					cmdChar += string(b)
				} else {
					e = true
					break
				}
			} else {
				if checkValidNumChar(b) {
					cmdNum += string(b)
				} else {
					cmdBuf.UnreadByte()
					break
				}
			}
		}
		if !e {
			cmdRet = m.processCommand(strings.ToUpper(cmdChar), cmdNum, cmdAssign, cmdQuery, cmdAssignVal)
			if cmdRet != RetCodeOk {
				break
			}
		}
		if cmdLong {
			break // extended commands don't support chaining
		}
	}

	if e {
		cmdRet = RetCodeError
	}
	return cmdRet
}

// ProcessAtCommand processes an AT command line (without the "AT" prefix)
// and returns the result code.
// The modem lock must be held before calling this method.
// Use ProcessAtCommandSync for automatic lock management.
func (m *Modem) ProcessAtCommand(cmd string) RetCode {
	m.checkLock()
	return m.processAtCommand(cmd)
}

// ProcessAtCommandSync processes an AT command line with automatic lock management.
func (m *Modem) ProcessAtCommandSync(cmd string) RetCode {
	m.Lock()
	defer m.Unlock()
	return m.processAtCommand(cmd)
}

// Metrics returns a copy of the current modem metrics and statistics.
// The modem lock must be held before calling this method.
// Use MetricsSync for automatic lock management.
func (m *Modem) Metrics() *Metrics {
	m.checkLock()
	copy := *m.metrics
	copy.Status = m.status()
	return &copy
}

// MetricsSync returns a copy of the current modem metrics with automatic lock management.
func (m *Modem) MetricsSync() *Metrics {
	m.Lock()
	defer m.Unlock()
	return m.Metrics()
}

func (m *Modem) ttyReadTask() {
	aFlag := false
	atFlag := false
	buffer := *bytes.NewBuffer(nil)
	byteBuff := make([]byte, 1)
	lastCmd := ""

	m.Lock()
	for m.status() != StatusClosed {
		m.Unlock()
		n, err := m.tty.Read(byteBuff)
		m.Lock()
		if m.status() == StatusClosed {
			break
		}

		if err != nil || n == 0 {
			m.setStatus(StatusClosed)
			break
		}
		m.metrics.LastTtyRxTime = time.Now()
		m.metrics.TtyRxBytes += n

		if !atFlag {
			if m.echo {
				m.ttyWrite(byteBuff)
			}
			if bytes.ToUpper(byteBuff)[0] == 'A' {
				aFlag = true
				continue
			}
			if aFlag && byteBuff[0] == '/' {
				aFlag = false
				if m.echo {
					m.ttyWriteStr("\r")
				}
				r := m.processAtCommand(lastCmd)
				m.printRetCode(r)
				continue
			}
			if aFlag && bytes.ToUpper(byteBuff)[0] == 'T' {
				atFlag = true
				aFlag = false
				continue
			}
			aFlag = false
		} else {
			if byteBuff[0] == 0x7f {
				if buffer.Len() > 0 {
					buffer.Truncate(buffer.Len() - 1)
					if m.echo {
						m.ttyWriteStr("\x1b[D \x1b[D")
					}
				}
				continue
			}
			if byteBuff[0] == '\r' {
				atFlag = false
				lastCmd = buffer.String()
				if m.echo {
					m.ttyWriteStr("\r")
				}
				r := m.processAtCommand(lastCmd)
				m.printRetCode(r)
				buffer.Reset()
				continue
			}
			if buffer.Len() < 256 && strconv.IsPrint(rune(byteBuff[0])) {
				buffer.Write(byteBuff)
				if m.echo {
					m.ttyWrite(byteBuff)
				}
			}
		}
	}
	m.Unlock()
}

// NewModem creates a new simulated modem with the specified configuration.
// The config parameter must not be nil and must contain at least the TTY field.
// The modem starts in StatusOff with LTE-M and GNSS enabled in its system mode,
// and begins processing TTY input immediately.
//
// Returns ErrConfigRequired if config is nil or required fields are missing.
func NewModem(config *Config) (*Modem, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	if config.TTY == nil {
		return nil, ErrConfigRequired
	}

	m := &Modem{
		st:               StatusOff,
		id:               config.Id,
		tty:              config.TTY,
		nmea:             config.NMEA,
		commandHook:      config.CommandHook,
		lineHook:         config.LineHook,
		statusTransition: config.StatusTransition,
		logger:           config.Logger,
		clock:            config.Clock,
		regDelay:         config.RegistrationDelay,
		regStatus:        config.RegistrationStatus,
		fixPeriod:        config.FixPeriod,
		position:         config.Position,
		echo:             true,
		sysMode:          SystemMode{LTE: true, GNSS: true},
		settings:         make(map[string]string),
		metrics:          &Metrics{},
	}

	m.stCtx, m.stCtxCancel = context.WithCancel(context.Background())

	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if m.clock == nil {
		m.clock = time.Now
	}

	if m.regStatus == 0 {
		m.regStatus = RegHome
	}

	if m.nmea == nil {
		m.nmea = io.Discard
	}

	go m.ttyReadTask()
	return m, nil
}
