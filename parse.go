package imapstructure

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedStructure is returned by BodyFromBodystructure when stored
// text does not match the bodystructure grammar. The caller is expected to
// log the original text, the attribute is then unavailable.
var ErrMalformedStructure = errors.New("malformed bodystructure")

type parseError struct{ err error }

func (e parseError) Error() string { return e.err.Error() }
func (e parseError) Unwrap() error { return e.err }

// xmalformedf aborts the current parse or reduce by panicking, recovered
// at the package boundary.
func xmalformedf(format string, args ...any) {
	panic(parseError{fmt.Errorf("%w: %s", ErrMalformedStructure, fmt.Sprintf(format, args...))})
}

type argKind int

const (
	argNIL argKind = iota
	argAtom
	argString
	argList
)

// arg is one node of a parsed argument tree: NIL, an atom, a quoted string
// or a parenthesized list.
type arg struct {
	kind argKind
	s    string // Atom text, or string contents with escaping resolved.
	list []arg
}

// parser parses the generic parenthesized argument syntax of stored
// bodystructure text. Errors panic with a parseError.
type parser struct {
	s string
	o int // Current offset in s.
}

func (p *parser) xerrorf(format string, args ...any) {
	errmsg := fmt.Sprintf(format, args...)
	panic(parseError{fmt.Errorf("%w: %s (remaining %q)", ErrMalformedStructure, errmsg, p.s[p.o:])})
}

func (p *parser) empty() bool {
	return p.o == len(p.s)
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.s[p.o:], s)
}

func (p *parser) take(s string) bool {
	if !p.hasPrefix(s) {
		return false
	}
	p.o += len(s)
	return true
}

// xargs parses space-separated arguments until end of input or a closing
// parenthesis. Adjacent lists need no separating space, each list is
// self-delimited.
func (p *parser) xargs() []arg {
	var l []arg
	for {
		for p.take(" ") {
		}
		if p.empty() || p.hasPrefix(")") {
			return l
		}
		l = append(l, p.xarg())
	}
}

func (p *parser) xarg() arg {
	if p.take("(") {
		l := p.xargs()
		if !p.take(")") {
			p.xerrorf("missing closing parenthesis")
		}
		return arg{kind: argList, list: l}
	}
	if p.take(`"`) {
		var b strings.Builder
		for !p.empty() {
			c := p.s[p.o]
			if c == '\\' && p.o+1 < len(p.s) {
				b.WriteByte(p.s[p.o+1])
				p.o += 2
				continue
			}
			if c == '"' {
				p.o++
				return arg{kind: argString, s: b.String()}
			}
			if c == '\r' || c == '\n' {
				break
			}
			b.WriteByte(c)
			p.o++
		}
		p.xerrorf("missing closing dquote in string")
	}
	start := p.o
	for !p.empty() && !strings.ContainsRune(`() "`, rune(p.s[p.o])) {
		p.o++
	}
	if p.o == start {
		p.xerrorf("expected argument")
	}
	s := p.s[start:p.o]
	if s == "NIL" {
		return arg{kind: argNIL}
	}
	return arg{kind: argAtom, s: s}
}
