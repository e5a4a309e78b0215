package nrfmodem

import (
	"fmt"
	"strings"

	"github.com/jaracil/nrfmodem/internal/atcmd"
)

// RegistrationStatus is the <stat> field of a +CEREG response. Home and
// Roaming are ready; NotSearching, Searching and Unknown are transient.
type RegistrationStatus int

const (
	RegNotSearching RegistrationStatus = 0
	RegHome         RegistrationStatus = 1
	RegSearching    RegistrationStatus = 2
	RegDenied       RegistrationStatus = 3
	RegUnknown      RegistrationStatus = 4
	RegRoaming      RegistrationStatus = 5
	RegUICCFailure  RegistrationStatus = 90
)

const registrationIdent = "+CEREG:"

// String returns the status name.
func (s RegistrationStatus) String() string {
	switch s {
	case RegNotSearching:
		return "NotSearching"
	case RegHome:
		return "Home"
	case RegSearching:
		return "Searching"
	case RegDenied:
		return "Denied"
	case RegUnknown:
		return "Unknown"
	case RegRoaming:
		return "Roaming"
	case RegUICCFailure:
		return "UICCFailure"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Err maps the status to the connect outcome: nil when registered,
// ErrWouldBlock while registration is still in progress, a hard error
// otherwise.
func (s RegistrationStatus) Err() error {
	switch s {
	case RegHome, RegRoaming:
		return nil
	case RegNotSearching, RegSearching, RegUnknown:
		return ErrWouldBlock
	case RegDenied:
		return ErrRegistrationDenied
	case RegUICCFailure:
		return ErrSIMFailure
	default:
		return fmt.Errorf("%w: registration status %d", ErrUnexpectedResponse, int(s))
	}
}

// ParseRegistration parses "+CEREG: <n>,<stat>[,...]" and returns <stat>.
// Fields after <stat> are informational and ignored.
func ParseRegistration(line string) (RegistrationStatus, error) {
	p := atcmd.NewParser(line)
	p.Identifier(registrationIdent)
	p.Int()
	stat := p.Int()
	if err := p.Err(); err != nil {
		return 0, err
	}
	return RegistrationStatus(stat), nil
}

// pollRegistration queries the registration status once. The lock must be
// held.
func (m *Modem) pollRegistration() error {
	var (
		stat     RegistrationStatus
		seen     bool
		parseErr error
	)
	err := m.command(cmdRegistrationQuery, func(line string) {
		if seen || !strings.HasPrefix(line, registrationIdent) {
			return
		}
		seen = true
		stat, parseErr = ParseRegistration(line)
	})
	if err != nil {
		return err
	}
	if !seen {
		return ErrNoResponse
	}
	if parseErr != nil {
		return parseErr
	}
	m.logger.Debug("cellular registration", "status", stat.String())
	return stat.Err()
}
