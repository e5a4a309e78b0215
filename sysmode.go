package nrfmodem

import (
	"github.com/jaracil/nrfmodem/internal/atcmd"
)

// ConnectionPreference is the network the modem prefers when registering.
type ConnectionPreference int

const (
	// PreferenceNone leaves system selection to history data and the USIM
	PreferenceNone ConnectionPreference = iota
	// PreferenceLTE prefers LTE-M
	PreferenceLTE
	// PreferenceNBIoT prefers NB-IoT
	PreferenceNBIoT
	// PreferenceNetworkLTEFallback lets network selection priorities win, then LTE-M
	PreferenceNetworkLTEFallback
	// PreferenceNetworkNBIoTFallback lets network selection priorities win, then NB-IoT
	PreferenceNetworkNBIoTFallback
)

// String returns the preference name.
func (p ConnectionPreference) String() string {
	switch p {
	case PreferenceNone:
		return "None"
	case PreferenceLTE:
		return "LTE"
	case PreferenceNBIoT:
		return "NBIoT"
	case PreferenceNetworkLTEFallback:
		return "NetworkLTEFallback"
	case PreferenceNetworkNBIoTFallback:
		return "NetworkNBIoTFallback"
	default:
		return "Unknown"
	}
}

// SystemMode identifies which radios the modem may activate.
type SystemMode struct {
	// LTE enables LTE-M
	LTE bool
	// NBIoT enables NB-IoT
	NBIoT bool
	// GNSS enables the positioning receiver
	GNSS bool
	// Preference selects the preferred network
	Preference ConnectionPreference
}

// DefaultSystemMode enables LTE-M and GNSS without a network preference.
var DefaultSystemMode = SystemMode{LTE: true, GNSS: true, Preference: PreferenceNone}

// Valid reports whether the preference only names enabled networks.
func (s SystemMode) Valid() bool {
	switch s.Preference {
	case PreferenceNone:
		return true
	case PreferenceLTE:
		return s.LTE
	case PreferenceNBIoT:
		return s.NBIoT
	case PreferenceNetworkLTEFallback, PreferenceNetworkNBIoTFallback:
		return s.LTE && s.NBIoT
	default:
		return false
	}
}

// Command returns the %XSYSTEMMODE set command for the mode.
func (s SystemMode) Command() string {
	return atcmd.Set("%XSYSTEMMODE", s.LTE, s.NBIoT, s.GNSS, int(s.Preference))
}

func (m *Modem) setSystemMode(mode SystemMode) error {
	if !mode.Valid() {
		return ErrInvalidConfiguration
	}
	err := m.command(mode.Command(), nil)
	switch {
	case atcmd.IsCME(err, cmeNotAllowedInActiveState):
		return ErrNotAllowedInActiveState
	case atcmd.IsCME(err, cmeInvalidBandConfiguration):
		return ErrInvalidBandConfiguration
	}
	return err
}

// SetSystemMode selects the radios the modem may use. The modem rejects the
// change while a subsystem is active (ErrNotAllowedInActiveState).
// The modem lock must be held before calling this method.
// Use SetSystemModeSync for automatic lock management.
func (m *Modem) SetSystemMode(mode SystemMode) error {
	m.checkLock()
	return m.setSystemMode(mode)
}

// SetSystemModeSync selects the radios the modem may use with automatic lock management.
func (m *Modem) SetSystemModeSync(mode SystemMode) error {
	m.Lock()
	defer m.Unlock()
	return m.setSystemMode(mode)
}
