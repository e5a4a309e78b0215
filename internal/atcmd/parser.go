package atcmd

import (
	"strconv"
	"strings"
)

// Parser walks a single information response line such as
// `+CEREG: 0,1,"002F","0012BEEF",7`. The first failure is sticky: later
// calls are no-ops and Err reports it.
type Parser struct {
	line  string
	pos   int
	first bool
	err   error
}

// NewParser returns a parser positioned at the start of line.
func NewParser(line string) *Parser {
	return &Parser{line: strings.TrimRight(line, "\r\n"), first: true}
}

func (p *Parser) fail(reason string) {
	if p.err == nil {
		p.err = &ParseError{Line: p.line, Pos: p.pos, Reason: reason}
	}
}

// Identifier expects the response prefix, for example "+CEREG:", followed by
// optional spaces.
func (p *Parser) Identifier(id string) *Parser {
	if p.err != nil {
		return p
	}
	if !strings.HasPrefix(p.line[p.pos:], id) {
		p.fail("expected " + id)
		return p
	}
	p.pos += len(id)
	for p.pos < len(p.line) && p.line[p.pos] == ' ' {
		p.pos++
	}
	return p
}

// separator consumes the comma between parameters.
func (p *Parser) separator() {
	if p.first {
		p.first = false
		return
	}
	if p.pos >= len(p.line) || p.line[p.pos] != ',' {
		p.fail("expected ,")
		return
	}
	p.pos++
}

// Int reads the next integer parameter.
func (p *Parser) Int() int {
	if p.err != nil {
		return 0
	}
	p.separator()
	if p.err != nil {
		return 0
	}
	start := p.pos
	if p.pos < len(p.line) && (p.line[p.pos] == '-' || p.line[p.pos] == '+') {
		p.pos++
	}
	for p.pos < len(p.line) && p.line[p.pos] >= '0' && p.line[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.line[start:p.pos])
	if err != nil {
		p.pos = start
		p.fail("expected integer")
		return 0
	}
	return n
}

// String reads the next quoted string parameter.
func (p *Parser) String() string {
	if p.err != nil {
		return ""
	}
	p.separator()
	if p.err != nil {
		return ""
	}
	if p.pos >= len(p.line) || p.line[p.pos] != '"' {
		p.fail("expected quoted string")
		return ""
	}
	end := strings.IndexByte(p.line[p.pos+1:], '"')
	if end < 0 {
		p.fail("unterminated string")
		return ""
	}
	s := p.line[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return s
}

// Finish requires that the whole line was consumed.
func (p *Parser) Finish() error {
	if p.err == nil && p.pos != len(p.line) {
		p.fail("trailing data")
	}
	return p.err
}

// Err returns the first parse failure, ignoring unconsumed trailing
// parameters.
func (p *Parser) Err() error {
	return p.err
}
