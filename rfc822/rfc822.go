// Package rfc822 tokenizes message header values and parses the common
// "value; name=value" syntax of structured headers such as Content-Type.
//
// Tokenizing never fails. Messages in the wild contain malformed headers,
// and callers must be able to extract whatever is usable. Unterminated
// quoted strings and comments run to the end of the input.
package rfc822

import (
	"strings"
)

// TokenKind is the class of a Token.
type TokenKind int

const (
	TokenSpecial TokenKind = iota // Single delimiter character, in Char.
	TokenAtom                     // Run of regular characters, in Text.
	TokenQuoted                   // Quoted string, Text has quotes and escapes removed.
	TokenComment                  // Full parenthesized comment, Text has parens removed.
)

// Token is one lexical unit of a header value.
type Token struct {
	Kind TokenKind
	Char byte   // For TokenSpecial.
	Text string // For TokenAtom, TokenQuoted, TokenComment.
}

// IsString returns whether the token carries free text, i.e. is an atom or
// quoted string.
func (t Token) IsString() bool {
	return t.Kind == TokenAtom || t.Kind == TokenQuoted
}

// Delimiters from RFC 822, plus the tspecials "/", "?" and "=" from RFC
// 2045, so Content-Type values split at the places the parameter grammar
// needs.
const specials = `()<>@,;:\".[]/?=`

func isSpecial(c byte) bool {
	return strings.IndexByte(specials, c) >= 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// Tokenize splits a raw header value into tokens. White space separates
// tokens and is dropped. Comments are returned as single pre-bounded tokens
// so callers can ignore them as units.
func Tokenize(s string) []Token {
	var l []Token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '"':
			text, n := readQuoted(s[i+1:], 0)
			l = append(l, Token{Kind: TokenQuoted, Text: text})
			i += 1 + n
		case c == '(':
			text, n := readQuoted(s[i+1:], 1)
			l = append(l, Token{Kind: TokenComment, Text: text})
			i += 1 + n
		case isSpecial(c):
			l = append(l, Token{Kind: TokenSpecial, Char: c})
			i++
		default:
			j := i
			for j < len(s) && !isSpace(s[j]) && !isSpecial(s[j]) && s[j] != '"' && s[j] != '(' {
				j++
			}
			l = append(l, Token{Kind: TokenAtom, Text: s[i:j]})
			i = j
		}
	}
	return l
}

// readQuoted reads the contents of a quoted string (depth 0) or comment
// (depth 1, tracking nesting), starting after the opening character. It
// returns the contents with backslash escapes resolved and the number of
// input bytes consumed including the closing character if present.
func readQuoted(s string, depth int) (string, int) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		if depth == 0 && c == '"' {
			return b.String(), i + 1
		}
		if depth > 0 {
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					return b.String(), i + 1
				}
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), i
}

// Value reconstructs the text of a token sequence: atoms and quoted strings
// contribute their text, specials their character, comments nothing. Two
// adjacent string tokens are separated by a single space.
func Value(l []Token) string {
	var b strings.Builder
	prevString := false
	for _, t := range l {
		switch t.Kind {
		case TokenComment:
			continue
		case TokenSpecial:
			b.WriteByte(t.Char)
			prevString = false
		default:
			if prevString {
				b.WriteByte(' ')
			}
			b.WriteString(t.Text)
			prevString = true
		}
	}
	return b.String()
}

// ValueQuoted is Value rendered as an IMAP quoted string.
func ValueQuoted(l []Token) string {
	return Quote(Value(l))
}

// Quote returns s as a double-quoted string with backslash and double quote
// escaped.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// ParseContentHeader parses a structured header value of the form
// "main-value; name=value; name=value". The tokens before the first
// semicolon are passed to mainValue. Each well-formed parameter is passed
// to param with the name token and the value tokens; param may be nil for
// headers without parameters. Parameters missing a name or "=" are skipped.
func ParseContentHeader(s string, mainValue func(l []Token), param func(name Token, value []Token)) {
	l := Tokenize(s)

	i := 0
	for i < len(l) && !isSemicolon(l[i]) {
		i++
	}
	if mainValue != nil {
		mainValue(l[:i])
	}

	for i < len(l) {
		i++ // Semicolon.
		start := i
		for i < len(l) && !isSemicolon(l[i]) {
			i++
		}
		if param == nil {
			continue
		}
		seg := l[start:i]
		if len(seg) < 2 || !seg[0].IsString() || seg[1].Kind != TokenSpecial || seg[1].Char != '=' {
			continue
		}
		param(seg[0], seg[2:])
	}
}

func isSemicolon(t Token) bool {
	return t.Kind == TokenSpecial && t.Char == ';'
}
