package imapstructure

import (
	"fmt"
	"strings"
)

// token is a value to be written in a response, as a NIL, atom, quoted
// string or parenthesized list.
type token interface {
	pack(b *strings.Builder)
}

// bare is pre-rendered wire text, written as-is. Metadata fields are kept
// pre-quoted, and number-like atoms are written through bare too.
type bare string

func (t bare) pack(b *strings.Builder) {
	b.WriteString(string(t))
}

type niltoken struct{}

var nilt niltoken

func (t niltoken) pack(b *strings.Builder) {
	b.WriteString("NIL")
}

// dquote is a string written with double quotes, with backslash and double
// quote escaped.
type dquote string

func (t dquote) pack(b *strings.Builder) {
	b.WriteByte('"')
	for i := 0; i < len(t); i++ {
		if t[i] == '\\' || t[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(t[i])
	}
	b.WriteByte('"')
}

type number int64

func (t number) pack(b *strings.Builder) {
	fmt.Fprintf(b, "%d", int64(t))
}

// listspace is a parenthesized list with spaces between the tokens.
type listspace []token

func (t listspace) pack(b *strings.Builder) {
	b.WriteByte('(')
	for i, e := range t {
		if i > 0 {
			b.WriteByte(' ')
		}
		e.pack(b)
	}
	b.WriteByte(')')
}

// concat is tokens written without separator. Each element is already
// self-delimited.
type concat []token

func (t concat) pack(b *strings.Builder) {
	for _, e := range t {
		e.pack(b)
	}
}

// bareOrNil writes pre-rendered text, or NIL when absent.
func bareOrNil(s string) token {
	if s == "" {
		return nilt
	}
	return bare(s)
}

// parensOrNil writes pre-rendered text wrapped in parentheses, or NIL when
// absent.
func parensOrNil(s string) token {
	if s == "" {
		return nilt
	}
	return bare("(" + s + ")")
}

// bareOr writes pre-rendered text, or a default when absent.
func bareOr(s, def string) token {
	if s == "" {
		return bare(def)
	}
	return bare(s)
}
