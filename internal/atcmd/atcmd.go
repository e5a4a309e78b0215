// Package atcmd builds modem command lines and parses their responses.
//
// Commands are plain strings ("AT+CFUN=21", "AT+CEREG?"). Responses arrive as
// lines; a command round trip ends with a final result line: "OK", "ERROR",
// "+CME ERROR: <n>" or "+CMS ERROR: <n>".
package atcmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Final result lines.
const (
	OK       = "OK"
	ERROR    = "ERROR"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"
)

// ErrorKind tells which final result terminated a failed command.
type ErrorKind int

const (
	// KindError is a bare "ERROR".
	KindError ErrorKind = iota
	// KindCME is "+CME ERROR: <n>", a mobile equipment error.
	KindCME
	// KindCMS is "+CMS ERROR: <n>", a message service error.
	KindCMS
)

func (k ErrorKind) String() string {
	switch k {
	case KindError:
		return "ERROR"
	case KindCME:
		return "CME"
	case KindCMS:
		return "CMS"
	default:
		return "Unknown"
	}
}

// CommandError is returned when the modem answers a command with an error
// result. Code is only meaningful for KindCME and KindCMS.
type CommandError struct {
	Command string
	Kind    ErrorKind
	Code    int
}

func (e *CommandError) Error() string {
	switch e.Kind {
	case KindCME, KindCMS:
		return fmt.Sprintf("command %q failed: %s error %d", e.Command, e.Kind, e.Code)
	default:
		return fmt.Sprintf("command %q failed", e.Command)
	}
}

// IsCME reports whether err is a CME error with the given code.
func IsCME(err error, code int) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Kind == KindCME && ce.Code == code
}

// ParseError describes a response line that does not have the expected shape.
type ParseError struct {
	Line   string
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at %d: %s", e.Line, e.Pos, e.Reason)
}

// Final classifies a response line. It returns final=true for a result line
// that terminates the command, with a non-nil *CommandError when the result
// is a failure. cmd is only used to annotate the error.
func Final(cmd, line string) (final bool, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == OK:
		return true, nil
	case line == ERROR:
		return true, &CommandError{Command: cmd, Kind: KindError}
	case strings.HasPrefix(line, CmeError):
		return true, &CommandError{Command: cmd, Kind: KindCME, Code: errorCode(line[len(CmeError):])}
	case strings.HasPrefix(line, CmsError):
		return true, &CommandError{Command: cmd, Kind: KindCMS, Code: errorCode(line[len(CmsError):])}
	}
	return false, nil
}

func errorCode(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}

// Set builds a set command: Set("+CFUN", 21) gives "AT+CFUN=21". Strings are
// quoted, bools are written as 0/1.
func Set(name string, params ...any) string {
	var sb strings.Builder
	sb.WriteString("AT")
	sb.WriteString(name)
	sb.WriteByte('=')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		switch v := p.(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		case bool:
			if v {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		default:
			fmt.Fprint(&sb, v)
		}
	}
	return sb.String()
}

// Query builds a read command: Query("+CEREG") gives "AT+CEREG?".
func Query(name string) string {
	return "AT" + name + "?"
}
