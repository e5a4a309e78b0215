package sim

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockReadWriteCloser implements io.ReadWriteCloser for testing
type MockReadWriteCloser struct {
	writes   []byte
	writeErr error
	closed   bool
	readChan chan byte
	done     chan struct{}
	mu       sync.Mutex
}

func NewMockReadWriteCloser() *MockReadWriteCloser {
	return &MockReadWriteCloser{
		readChan: make(chan byte, 1000),
		done:     make(chan struct{}),
	}
}

func (m *MockReadWriteCloser) Read(p []byte) (int, error) {
	// Block like a real TTY until input arrives or the device is closed
	select {
	case b := <-m.readChan:
		p[0] = b
		return 1, nil
	case <-m.done:
		return 0, io.EOF
	}
}

func (m *MockReadWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, p...)
	return len(p), nil
}

func (m *MockReadWriteCloser) WriteInput(data []byte) {
	for _, b := range data {
		m.readChan <- b
	}
}

func (m *MockReadWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// FailWrites makes every later Write fail with err while reads keep working.
func (m *MockReadWriteCloser) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeErr = err
}

func (m *MockReadWriteCloser) GetWrittenString() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return string(m.writes)
}

func (m *MockReadWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *MockReadWriteCloser) ClearWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = nil
}

// syncBuffer is a bytes.Buffer safe for the NMEA task to write concurrently
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestModem(t *testing.T, config *Config) (*Modem, *MockReadWriteCloser) {
	t.Helper()
	tty := NewMockReadWriteCloser()
	if config == nil {
		config = &Config{}
	}
	config.Id = "test-modem"
	config.TTY = tty
	modem, err := NewModem(config)
	if err != nil {
		t.Fatalf("NewModem() error = %v", err)
	}
	t.Cleanup(modem.CloseSync)
	return modem, tty
}

// Test ModemStatus.String() method
func TestModemStatus_String(t *testing.T) {
	tests := []struct {
		name     string
		status   ModemStatus
		expected string
	}{
		{"StatusOff", StatusOff, "Off"},
		{"StatusCellular", StatusCellular, "Cellular"},
		{"StatusPositioning", StatusPositioning, "Positioning"},
		{"StatusFull", StatusFull, "Full"},
		{"StatusClosed", StatusClosed, "Closed"},
		{"Unknown status", ModemStatus(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.status.String()
			if result != tt.expected {
				t.Errorf("ModemStatus.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

// Test CmdReturnFromString function
func TestCmdReturnFromString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected RetCode
	}{
		{"OK command", "OK", RetCodeOk},
		{"ERROR command", "error", RetCodeError},
		{"CME ERROR command", "CME ERROR", RetCodeCmeError},
		{"Skip", "SKIP", RetCodeSkip},
		{"Unknown command", "UNKNOWN_COMMAND", RetCodeUnknown},
		{"Empty string", "", RetCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CmdReturnFromString(tt.input)
			if result != tt.expected {
				t.Errorf("CmdReturnFromString(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

// Test NewModem function
func TestNewModem(t *testing.T) {
	t.Run("Valid config", func(t *testing.T) {
		modem, _ := newTestModem(t, nil)
		if modem.StatusSync() != StatusOff {
			t.Errorf("Initial status = %v, want %v", modem.StatusSync(), StatusOff)
		}
	})

	t.Run("Nil config", func(t *testing.T) {
		modem, err := NewModem(nil)
		if err != ErrConfigRequired {
			t.Errorf("NewModem(nil) error = %v, want %v", err, ErrConfigRequired)
		}
		if modem != nil {
			t.Error("NewModem(nil) should return nil modem")
		}
	})

	t.Run("Missing TTY", func(t *testing.T) {
		if _, err := NewModem(&Config{Id: "x"}); err != ErrConfigRequired {
			t.Errorf("NewModem() error = %v, want %v", err, ErrConfigRequired)
		}
	})
}

// Test functional mode transitions driven by +CFUN
func TestModem_FunctionalMode(t *testing.T) {
	var transitions []string
	modem, _ := newTestModem(t, &Config{
		StatusTransition: func(m *Modem, prev, next ModemStatus) {
			transitions = append(transitions, prev.String()+">"+next.String())
		},
	})

	tests := []struct {
		command  string
		expected RetCode
		status   ModemStatus
	}{
		{"+CFUN=21", RetCodeOk, StatusCellular},
		{"+CFUN=31", RetCodeOk, StatusFull},
		{"+CFUN=20", RetCodeOk, StatusPositioning},
		{"+CFUN=40", RetCodeOk, StatusPositioning},
		{"+CFUN=30", RetCodeOk, StatusOff},
		{"+CFUN=1", RetCodeOk, StatusFull},
		{"+CFUN=4", RetCodeOk, StatusOff},
		{"+CFUN=7", RetCodeError, StatusOff},
		{"+CFUN=x", RetCodeError, StatusOff},
	}

	for _, test := range tests {
		result := modem.ProcessAtCommandSync(test.command)
		if result != test.expected {
			t.Errorf("ProcessAtCommand(%q) = %v, want %v", test.command, result, test.expected)
		}
		if got := modem.StatusSync(); got != test.status {
			t.Errorf("After %q status = %v, want %v", test.command, got, test.status)
		}
	}

	want := "Off>Cellular Cellular>Full Full>Positioning Positioning>Off Off>Full Full>Off"
	if got := strings.Join(transitions, " "); got != want {
		t.Errorf("Transitions = %q, want %q", got, want)
	}

	metrics := modem.MetricsSync()
	if metrics.CellularActivations != 2 || metrics.PositioningActivations != 2 {
		t.Errorf("Activations = %d/%d, want 2/2", metrics.CellularActivations, metrics.PositioningActivations)
	}
}

// Test the system mode gates activation and is locked while active
func TestModem_SystemMode(t *testing.T) {
	modem, _ := newTestModem(t, nil)

	tests := []struct {
		command  string
		expected RetCode
		cme      int
	}{
		{"%XSYSTEMMODE=0,1,0,0", RetCodeOk, 0},
		{"+CFUN=31", RetCodeError, 0},
		{"+CFUN=21", RetCodeOk, 0},
		{"%XSYSTEMMODE=1,0,1,0", RetCodeCmeError, CmeNotAllowedInActiveState},
		{"+CFUN=0", RetCodeOk, 0},
		{"%XSYSTEMMODE=0,0,0,0", RetCodeCmeError, CmeInvalidBandConfiguration},
		{"%XSYSTEMMODE=1,1", RetCodeError, 0},
		{"%XSYSTEMMODE=1,0,1,0", RetCodeOk, 0},
	}
	for _, test := range tests {
		modem.Lock()
		result := modem.ProcessAtCommand(test.command)
		cme := modem.cmeCode
		modem.Unlock()
		if result != test.expected {
			t.Errorf("ProcessAtCommand(%q) = %v, want %v", test.command, result, test.expected)
		}
		if test.cme != 0 && cme != test.cme {
			t.Errorf("ProcessAtCommand(%q) CME code = %d, want %d", test.command, cme, test.cme)
		}
	}

	modem.Lock()
	defer modem.Unlock()
	if got := modem.SystemMode(); got != (SystemMode{LTE: true, GNSS: true}) {
		t.Errorf("SystemMode() = %+v, want LTE and GNSS", got)
	}
}

// Test +CEREG and +CCLK through the TTY
func TestModem_RegistrationFlow(t *testing.T) {
	clock := time.Date(2018, 12, 6, 22, 10, 0, 0, time.FixedZone("", 2*60*60))
	modem, tty := newTestModem(t, &Config{
		RegistrationDelay: 50 * time.Millisecond,
		Clock:             func() time.Time { return clock },
	})

	steps := []struct {
		name     string
		command  string
		wait     time.Duration
		expected string
	}{
		{"Not searching while off", "AT+CEREG?\r", 0, "+CEREG: 0,0"},
		{"Clock needs network", "AT+CCLK?\r", 0, "+CME ERROR: 3"},
		{"Activate", "AT+CFUN=21\r", 0, "OK"},
		{"Searching", "AT+CEREG?\r", 0, "+CEREG: 0,2"},
		{"Registered", "AT+CEREG?\r", 100 * time.Millisecond, "+CEREG: 0,1"},
		{"Clock", "AT+CCLK?\r", 0, `+CCLK: "18/12/06,22:10:00+08"`},
		{"Report mode", "AT+CEREG=5\r", 0, "OK"},
		{"Report mode query", "AT+CEREG?\r", 0, "+CEREG: 5,1"},
	}

	for _, step := range steps {
		time.Sleep(step.wait)
		tty.ClearWrites()
		tty.WriteInput([]byte(step.command))
		time.Sleep(30 * time.Millisecond)
		if response := tty.GetWrittenString(); !strings.Contains(response, step.expected) {
			t.Errorf("%s: expected response to contain %q, got %q", step.name, step.expected, response)
		}
	}

	modem.SetRegistrationSync(RegDenied)
	tty.ClearWrites()
	tty.WriteInput([]byte("AT+CEREG?\r"))
	time.Sleep(30 * time.Millisecond)
	if response := tty.GetWrittenString(); !strings.Contains(response, "+CEREG: 5,3") {
		t.Errorf("Expected denied registration, got %q", response)
	}
}

// Test echo and A/ repeat through the TTY
func TestModem_EchoAndRepeat(t *testing.T) {
	modem, tty := newTestModem(t, nil)

	tty.WriteInput([]byte("AT+CFUN?\r"))
	time.Sleep(30 * time.Millisecond)
	response := tty.GetWrittenString()
	if !strings.Contains(response, "AT+CFUN?") {
		t.Errorf("Expected command to be echoed back, got %q", response)
	}
	if !strings.Contains(response, "\r\n+CFUN: 0\r\n\r\nOK\r\n") {
		t.Errorf("Expected framed information response, got %q", response)
	}

	tty.ClearWrites()
	tty.WriteInput([]byte("ATE0\r"))
	time.Sleep(30 * time.Millisecond)
	tty.ClearWrites()
	tty.WriteInput([]byte("AT+CPSMS=1\r"))
	time.Sleep(30 * time.Millisecond)
	if response := tty.GetWrittenString(); response != "\r\nOK\r\n" {
		t.Errorf("Expected bare OK with echo off, got %q", response)
	}

	tty.ClearWrites()
	tty.WriteInput([]byte("A/"))
	time.Sleep(30 * time.Millisecond)
	if response := tty.GetWrittenString(); response != "\r\nOK\r\n" {
		t.Errorf("Expected repeated command to answer OK, got %q", response)
	}
	if v, ok := modem.SettingSync("+CPSMS"); !ok || v != "1" {
		t.Errorf("SettingSync(+CPSMS) = %q, %v, want 1, true", v, ok)
	}
	if got := modem.MetricsSync().Commands; got != 4 {
		t.Errorf("Commands = %d, want 4", got)
	}
}

// Test backspace editing of the command line
func TestModem_Backspace(t *testing.T) {
	modem, tty := newTestModem(t, nil)

	tty.WriteInput([]byte("AT+CEPPX\x7fI=1\r"))
	time.Sleep(30 * time.Millisecond)
	if response := tty.GetWrittenString(); !strings.Contains(response, "OK") {
		t.Errorf("Expected OK after edited command, got %q", response)
	}
	if v, _ := modem.SettingSync("+CEPPI"); v != "1" {
		t.Errorf("SettingSync(+CEPPI) = %q, want 1", v)
	}
}

// Test the NMEA stream follows #XGPS and the functional mode
func TestModem_NMEAStream(t *testing.T) {
	nmea := &syncBuffer{}
	modem, _ := newTestModem(t, &Config{
		NMEA:      nmea,
		FixPeriod: 10 * time.Millisecond,
		Position:  Position{Latitude: 48.1173, Longitude: 11.5167, Altitude: 545.4, Satellites: 8},
	})

	if r := modem.ProcessAtCommandSync("#XGPS=1,0,1,60"); r != RetCodeError {
		t.Errorf("#XGPS=1 with receiver off = %v, want %v", r, RetCodeError)
	}
	for _, cmd := range []string{"+CFUN=31", "#XGPSDEL=511", "#XGPS=1,0,1,60"} {
		if r := modem.ProcessAtCommandSync(cmd); r != RetCodeOk {
			t.Fatalf("ProcessAtCommand(%q) = %v, want %v", cmd, r, RetCodeOk)
		}
	}
	modem.Lock()
	if !modem.GPSRunning() || modem.GPSDeleteMask() != 511 {
		t.Errorf("GPSRunning() = %v, GPSDeleteMask() = %d", modem.GPSRunning(), modem.GPSDeleteMask())
	}
	modem.Unlock()

	time.Sleep(50 * time.Millisecond)
	out := nmea.String()
	if !strings.Contains(out, "$GPGGA,") || !strings.Contains(out, "$GPRMC,") {
		t.Fatalf("Expected GGA and RMC sentences, got %q", out)
	}
	if !strings.Contains(out, "4807.0380,N,01131.0020,E") {
		t.Errorf("Expected encoded position, got %q", out)
	}

	// Deactivating the receiver stops the stream.
	modem.ProcessAtCommandSync("+CFUN=30")
	time.Sleep(20 * time.Millisecond)
	before := modem.MetricsSync().NMEASentences
	time.Sleep(40 * time.Millisecond)
	if after := modem.MetricsSync().NMEASentences; after != before {
		t.Errorf("NMEA sentences kept flowing after +CFUN=30: %d -> %d", before, after)
	}
}

func TestNMEAChecksum(t *testing.T) {
	// Reference sentence from the NMEA 0183 documentation.
	body := "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
	if got := nmeaFrame(body); got != "$"+body+"*47" {
		t.Errorf("nmeaFrame() = %q, want checksum 47", got)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		t        time.Time
		expected string
	}{
		{time.Date(2018, 12, 6, 22, 10, 0, 0, time.FixedZone("", 2*60*60)), `+CCLK: "18/12/06,22:10:00+08"`},
		{time.Date(2024, 2, 29, 7, 5, 59, 0, time.FixedZone("", -5*60*60)), `+CCLK: "24/02/29,07:05:59-20"`},
		{time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), `+CCLK: "30/01/01,00:00:00+00"`},
	}
	for _, tt := range tests {
		if got := formatClock(tt.t); got != tt.expected {
			t.Errorf("formatClock() = %q, want %q", got, tt.expected)
		}
	}
}

// Test line and command hooks
func TestModem_Hooks(t *testing.T) {
	modem, tty := newTestModem(t, &Config{
		LineHook: func(m *Modem, line string) RetCode {
			if line == "+CGMR" {
				m.Info("mfw_nrf9160_1.3.5")
				return RetCodeOk
			}
			return RetCodeSkip
		},
		CommandHook: func(m *Modem, cmdChar, cmdNum string, cmdAssign, cmdQuery bool, cmdAssignVal string) RetCode {
			if cmdChar == "+CFUN" && cmdAssignVal == "21" {
				m.SetCmeError(CmeNotAllowed)
				return RetCodeCmeError
			}
			return RetCodeSkip
		},
	})

	tty.WriteInput([]byte("AT+CGMR\r"))
	time.Sleep(30 * time.Millisecond)
	if response := tty.GetWrittenString(); !strings.Contains(response, "mfw_nrf9160_1.3.5\r\n\r\nOK") {
		t.Errorf("Expected line hook response, got %q", response)
	}

	tty.ClearWrites()
	tty.WriteInput([]byte("AT+CFUN=21\r"))
	time.Sleep(30 * time.Millisecond)
	if response := tty.GetWrittenString(); !strings.Contains(response, "+CME ERROR: 3") {
		t.Errorf("Expected command hook error, got %q", response)
	}
	if modem.StatusSync() != StatusOff {
		t.Errorf("Command hook should have prevented activation")
	}
	if got := modem.MetricsSync().CommandErrors; got != 1 {
		t.Errorf("CommandErrors = %d, want 1", got)
	}
}

// Test unknown commands are rejected
func TestModem_UnknownCommand(t *testing.T) {
	modem, _ := newTestModem(t, nil)
	for _, cmd := range []string{"+XYZ", "E5", "&F", "=1"} {
		if r := modem.ProcessAtCommandSync(cmd); r != RetCodeError {
			t.Errorf("ProcessAtCommand(%q) = %v, want %v", cmd, r, RetCodeError)
		}
	}
	if r := modem.ProcessAtCommandSync(""); r != RetCodeOk {
		t.Errorf("ProcessAtCommand(\"\") = %v, want %v", r, RetCodeOk)
	}
}

// Test closing the TTY closes the modem
func TestModem_Close(t *testing.T) {
	modem, tty := newTestModem(t, nil)
	tty.Close()
	time.Sleep(20 * time.Millisecond)
	if modem.StatusSync() != StatusClosed {
		t.Errorf("Status after TTY close = %v, want %v", modem.StatusSync(), StatusClosed)
	}
	// CloseSync on a closed modem is a no-op
	modem.CloseSync()
}

// Test a TTY write failure while answering a command closes the modem
func TestModem_TTYWriteFailureDuringCommand(t *testing.T) {
	modem, tty := newTestModem(t, nil)

	modem.Lock()
	modem.setFunctionalMode(21)
	modem.Unlock()
	if modem.StatusSync() != StatusCellular {
		t.Fatalf("Status = %v, want %v", modem.StatusSync(), StatusCellular)
	}

	tty.FailWrites(io.ErrShortWrite)
	tty.WriteInput([]byte("ATE1\r"))
	time.Sleep(50 * time.Millisecond)

	if modem.StatusSync() != StatusClosed {
		t.Errorf("Expected modem to be closed after TTY write failure, got %v", modem.StatusSync())
	}
	if !tty.IsClosed() {
		t.Error("Expected TTY to be closed")
	}
}
