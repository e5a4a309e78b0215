package nrfmodem

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jaracil/nrfmodem/internal/atcmd"
)

func TestNewModem(t *testing.T) {
	if _, err := NewModem(nil); err != ErrConfigRequired {
		t.Errorf("NewModem(nil) error = %v, want %v", err, ErrConfigRequired)
	}
	if _, err := NewModem(&Config{}); err != ErrConfigRequired {
		t.Errorf("NewModem(no driver) error = %v, want %v", err, ErrConfigRequired)
	}

	d := newFakeDriver()
	m, err := NewModem(&Config{Driver: d})
	if err != nil {
		t.Fatalf("NewModem() error = %v", err)
	}
	want := []string{"AT+CFUN=0", "AT%XSYSTEMMODE=1,0,1,0"}
	if got := d.issued(); !reflect.DeepEqual(got, want) {
		t.Errorf("NewModem() commands = %q, want %q", got, want)
	}
	if got := m.StateSync(); got != (ResourceState{}) {
		t.Errorf("StateSync() = %v, want zero state", got)
	}
	if m.PollInterval() != DefaultPollInterval {
		t.Errorf("PollInterval() = %v, want %v", m.PollInterval(), DefaultPollInterval)
	}
	if m.resolver != d {
		t.Errorf("resolver not taken from driver")
	}
}

func TestNewModemCommandFailure(t *testing.T) {
	d := newFakeDriver()
	d.fail[cmdModemOff] = &CommandError{Command: cmdModemOff}
	_, err := NewModem(&Config{Driver: d})
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("NewModem() error = %v, want *CommandError", err)
	}
	if got := d.issued(); len(got) != 1 {
		t.Errorf("NewModem() sent %q after failure", got)
	}
}

func TestSystemMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  SystemMode
		valid bool
		cmd   string
	}{
		{"Default", DefaultSystemMode, true, "AT%XSYSTEMMODE=1,0,1,0"},
		{"NB-IoT only", SystemMode{NBIoT: true, Preference: PreferenceNBIoT}, true, "AT%XSYSTEMMODE=0,1,0,2"},
		{"LTE preference without LTE", SystemMode{NBIoT: true, Preference: PreferenceLTE}, false, ""},
		{"Fallback needs both", SystemMode{LTE: true, GNSS: true, Preference: PreferenceNetworkLTEFallback}, false, ""},
		{"Fallback with both", SystemMode{LTE: true, NBIoT: true, Preference: PreferenceNetworkNBIoTFallback}, true, "AT%XSYSTEMMODE=1,1,0,4"},
		{"Unknown preference", SystemMode{LTE: true, Preference: 9}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.Valid(); got != tt.valid {
				t.Fatalf("Valid() = %v, want %v", got, tt.valid)
			}
			if tt.valid {
				if got := tt.mode.Command(); got != tt.cmd {
					t.Errorf("Command() = %q, want %q", got, tt.cmd)
				}
			}
		})
	}
}

func TestSetSystemModeErrors(t *testing.T) {
	m, d := newTestModem(t)

	if err := m.SetSystemModeSync(SystemMode{Preference: PreferenceLTE}); err != ErrInvalidConfiguration {
		t.Errorf("SetSystemModeSync(invalid) error = %v, want %v", err, ErrInvalidConfiguration)
	}
	if n := len(d.issued()); n != 0 {
		t.Errorf("invalid mode sent %d commands, want 0", n)
	}

	tests := []struct {
		code int
		want error
	}{
		{518, ErrNotAllowedInActiveState},
		{522, ErrInvalidBandConfiguration},
	}
	mode := SystemMode{LTE: true, NBIoT: true}
	for _, tt := range tests {
		d.fail[mode.Command()] = &CommandError{Command: mode.Command(), Kind: atcmd.KindCME, Code: tt.code}
		if err := m.SetSystemModeSync(mode); err != tt.want {
			t.Errorf("SetSystemModeSync() with CME %d error = %v, want %v", tt.code, err, tt.want)
		}
	}

	d.fail[mode.Command()] = &CommandError{Command: mode.Command(), Kind: atcmd.KindCME, Code: 100}
	var ce *CommandError
	if err := m.SetSystemModeSync(mode); !errors.As(err, &ce) || ce.Code != 100 {
		t.Errorf("SetSystemModeSync() with CME 100 error = %v, want the command error", err)
	}
}

func TestLockedAccessors(t *testing.T) {
	m, _ := newTestModem(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("State() without lock did not panic")
			}
		}()
		m.State()
	}()

	m.Lock()
	if got := m.State(); got != (ResourceState{}) {
		t.Errorf("State() = %v, want zero state", got)
	}
	if got := m.Metrics(); got.CommandsSent != 2 {
		t.Errorf("Metrics().CommandsSent = %d, want 2", got.CommandsSent)
	}
	m.Unlock()
}
