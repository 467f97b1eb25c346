package rfc822

import (
	"reflect"
	"testing"
)

func tcompare(t *testing.T, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got %v, expected %v", got, exp)
	}
}

func TestTokenize(t *testing.T) {
	l := Tokenize(`text/plain; charset="us-ascii" (note)`)
	exp := []Token{
		{Kind: TokenAtom, Text: "text"},
		{Kind: TokenSpecial, Char: '/'},
		{Kind: TokenAtom, Text: "plain"},
		{Kind: TokenSpecial, Char: ';'},
		{Kind: TokenAtom, Text: "charset"},
		{Kind: TokenSpecial, Char: '='},
		{Kind: TokenQuoted, Text: "us-ascii"},
		{Kind: TokenComment, Text: "note"},
	}
	tcompare(t, l, exp)

	// Escapes in quoted strings, nested comments.
	l = Tokenize(`"a\"b" (x (y) \) z) last`)
	exp = []Token{
		{Kind: TokenQuoted, Text: `a"b`},
		{Kind: TokenComment, Text: "x (y) ) z"},
		{Kind: TokenAtom, Text: "last"},
	}
	tcompare(t, l, exp)

	// Unterminated quoted string runs to end of input, tokenizing never
	// fails.
	l = Tokenize(`"oops`)
	tcompare(t, l, []Token{{Kind: TokenQuoted, Text: "oops"}})

	tcompare(t, len(Tokenize("   ")), 0)
}

func TestValue(t *testing.T) {
	tcompare(t, Value(Tokenize("text / plain")), "text/plain")
	tcompare(t, Value(Tokenize(`one two`)), "one two")
	tcompare(t, Value(Tokenize(`one (c) two`)), "one two")
	tcompare(t, Value(Tokenize(`"a b" c`)), "a b c")
	tcompare(t, ValueQuoted(Tokenize("7bit")), `"7bit"`)
	tcompare(t, ValueQuoted(Tokenize(`he said "hi"`)), `"he said hi"`)
	tcompare(t, ValueQuoted(nil), `""`)
}

func TestQuote(t *testing.T) {
	tcompare(t, Quote("plain"), `"plain"`)
	tcompare(t, Quote(`a"b\c`), `"a\"b\\c"`)
	tcompare(t, Quote(""), `""`)
}

func TestParseContentHeader(t *testing.T) {
	var main string
	var params [][2]string
	parse := func(s string) {
		main = ""
		params = nil
		ParseContentHeader(s, func(l []Token) {
			main = Value(l)
		}, func(name Token, value []Token) {
			params = append(params, [2]string{name.Text, Value(value)})
		})
	}

	parse(`text/plain; charset=us-ascii; format="flowed"`)
	tcompare(t, main, "text/plain")
	tcompare(t, params, [][2]string{{"charset", "us-ascii"}, {"format", "flowed"}})

	// Parameters without "=" are skipped.
	parse(`attachment; oops; filename=x.txt`)
	tcompare(t, main, "attachment")
	tcompare(t, params, [][2]string{{"filename", "x.txt"}})

	// No parameters at all.
	parse("inline")
	tcompare(t, main, "inline")
	tcompare(t, len(params), 0)

	// Nil param callback must not be called.
	ParseContentHeader("x; a=b", func(l []Token) {}, nil)
}
