package imapstructure

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/mjl-/imapstructure/message"
)

func tcheck(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

func tcompare(t *testing.T, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got %v, expected %v", got, exp)
	}
}

// trender checks both forms against their expected text, and that reducing
// the extended form gives back the unextended form.
func trender(t *testing.T, p *message.Part, expBody, expBodystructure string) {
	t.Helper()
	tcompare(t, Render(p, false), expBody)
	tcompare(t, Render(p, true), expBodystructure)
	body, err := BodyFromBodystructure(expBodystructure)
	tcheck(t, err, "reducing rendered bodystructure")
	tcompare(t, body, expBody)
}

func TestRenderDefaults(t *testing.T) {
	// A part without metadata renders with the text/plain and 8bit defaults.
	p := &message.Part{Text: true}
	trender(t, p,
		`"text" "plain" NIL NIL NIL "8bit" 0 0`,
		`"text" "plain" NIL NIL NIL "8bit" 0 0 NIL NIL NIL`,
	)
}

func TestRenderLeaf(t *testing.T) {
	p := &message.Part{
		Text:         true,
		EndOffset:    12,
		RawLineCount: 1,
		BodyData: &message.BodyData{
			Type:              `"text"`,
			SubType:           `"plain"`,
			TypeParams:        `"charset" "us-ascii"`,
			TransferEncoding:  `"7bit"`,
			ID:                `"<id@host>"`,
			Description:       `"descr"`,
			MD5:               `"3e25"`,
			Disposition:       `"attachment"`,
			DispositionParams: `"filename" "x"`,
			Language:          `"en"`,
		},
	}
	body := `"text" "plain" ("charset" "us-ascii") "<id@host>" "descr" "7bit" 12 1`
	trender(t, p, body, body+` "3e25" ("attachment" ("filename" "x")) ("en")`)

	// The unextended form is a prefix of the extended form of the same leaf.
	if !strings.HasPrefix(Render(p, true), Render(p, false)) {
		t.Fatalf("body %q not a prefix of bodystructure %q", Render(p, false), Render(p, true))
	}

	// Disposition without parameters has no nested parameter list.
	p.BodyData.DispositionParams = ""
	tcompare(t, strings.HasSuffix(Render(p, true), ` ("attachment") ("en")`), true)
}

func TestRenderMultipart(t *testing.T) {
	leaf := &message.Part{
		Text:         true,
		EndOffset:    12,
		RawLineCount: 1,
		BodyData:     &message.BodyData{Type: `"text"`, SubType: `"plain"`, TransferEncoding: `"7bit"`},
	}
	p := &message.Part{
		Multipart: true,
		Parts:     []*message.Part{leaf, leaf},
		BodyData:  &message.BodyData{SubType: `"mixed"`},
	}
	part := `"text" "plain" NIL NIL NIL "7bit" 12 1`
	trender(t, p,
		`(`+part+`)(`+part+`) "mixed"`,
		`(`+part+` NIL NIL NIL)(`+part+` NIL NIL NIL) "mixed" NIL NIL NIL`,
	)
}

func TestRenderEmptyMultipart(t *testing.T) {
	// A multipart without parts is not allowed, a zero-length text/plain
	// part is substituted.
	p := &message.Part{Multipart: true, BodyData: &message.BodyData{SubType: `"digest"`}}
	trender(t, p,
		emptyStructure+` "digest"`,
		emptyStructure+` "digest" NIL NIL NIL`,
	)

	// Without metadata the multipart/mixed default applies.
	p = &message.Part{Multipart: true}
	tcompare(t, Render(p, false), emptyStructure+` "mixed"`)
}

func TestRenderMessage(t *testing.T) {
	innerBody := "Hello Joe, do you think we can meet at 3:30 tomorrow?\r\n"
	sub := "From: Fred Foobar <foobar@blurdybloop.example>\r\n" +
		"To: mooch@owatagu.siam.edu.example\r\n" +
		"Date: Mon, 7 Feb 1994 21:52:25 -0800\r\n" +
		"Subject: afternoon meeting\r\n" +
		"Content-Type: text/plain; charset=us-ascii\r\n" +
		"\r\n" +
		innerBody
	p, err := message.Parse(nil, strings.NewReader("Content-Type: message/rfc822\r\n\r\n"+sub))
	tcheck(t, err, "parsing message")

	from := `(("Fred Foobar" NIL "foobar" "blurdybloop.example"))`
	env := `("Mon, 7 Feb 1994 21:52:25 -0800" "afternoon meeting" ` +
		from + ` ` + from + ` ` + from +
		` ((NIL NIL "mooch" "owatagu.siam.edu.example")) NIL NIL NIL NIL)`
	inner := fmt.Sprintf(`"text" "plain" ("charset" "us-ascii") NIL NIL "8bit" %d 1`, len(innerBody))
	tcompare(t, Render(p, false),
		fmt.Sprintf(`"message" "rfc822" NIL NIL NIL "8bit" %d %s (%s) 7`, len(sub), env, inner))
	tcompare(t, Render(p, true),
		fmt.Sprintf(`"message" "rfc822" NIL NIL NIL "8bit" %d %s (%s NIL NIL NIL) 7 NIL NIL NIL`, len(sub), env, inner))
}

func TestRenderMessageNoEnvelope(t *testing.T) {
	// An embedded message without envelope headers gets a NIL envelope.
	sub := "Content-Type: text/plain\r\n\r\nx\r\n"
	p, err := message.Parse(nil, strings.NewReader("Content-Type: message/rfc822\r\n\r\n"+sub))
	tcheck(t, err, "parsing message")
	tcompare(t, Render(p, false),
		fmt.Sprintf(`"message" "rfc822" NIL NIL NIL "8bit" %d NIL ("text" "plain" NIL NIL NIL "8bit" 3 1) 3`, len(sub)))

	// Hand-built message/rfc822 part without embedded part at all.
	mp := &message.Part{
		MessageRFC822: true,
		BodyData:      &message.BodyData{Type: `"message"`, SubType: `"rfc822"`},
	}
	tcompare(t, Render(mp, false), `"message" "rfc822" NIL NIL NIL "8bit" 0 NIL `+emptyStructure+` 0`)
}

func TestRenderParsed(t *testing.T) {
	msg := "Content-Type: multipart/mixed; boundary=x\r\n" +
		"Content-Language: en-US, (dialect) az-arabic\r\n" +
		"\r\n" +
		"--x\r\n" +
		"Content-Type: text/plain; charset=us-ascii\r\n" +
		"\r\n" +
		"A\r\n" +
		"--x\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Disposition: attachment; filename=a.bin\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"AAAA\r\n" +
		"--x--\r\n"
	p, err := message.Parse(nil, strings.NewReader(msg))
	tcheck(t, err, "parsing message")

	trender(t, p,
		`("text" "plain" ("charset" "us-ascii") NIL NIL "8bit" 3 1)`+
			`("application" "octet-stream" NIL NIL NIL "base64" 6) "mixed"`,
		`("text" "plain" ("charset" "us-ascii") NIL NIL "8bit" 3 1 NIL NIL NIL)`+
			`("application" "octet-stream" NIL NIL NIL "base64" 6 NIL ("attachment" ("filename" "a.bin")) NIL)`+
			` "mixed" ("boundary" "x") NIL ("en-US" "az-arabic")`,
	)
}

func TestRenderEnsured(t *testing.T) {
	// A message that fails parsing still renders a valid structure through
	// the EnsurePart fallback: the shape and metadata survive, so a text
	// part keeps its line count and the result reduces cleanly.
	msg := "Content-Type: text/plain\r\n\r\n" + strings.Repeat("x", 10*1024) + "\r\nmore\r\n"
	p, err := message.EnsurePart(nil, strings.NewReader(msg), int64(len(msg)))
	if err == nil {
		t.Fatalf("expected error for message with too long line")
	}
	size := 10*1024 + 8
	trender(t, p,
		fmt.Sprintf(`"text" "plain" NIL NIL NIL "8bit" %d 2`, size),
		fmt.Sprintf(`"text" "plain" NIL NIL NIL "8bit" %d 2 NIL NIL NIL`, size),
	)
}

func TestRenderQuoting(t *testing.T) {
	// Metadata with quotes and backslashes is stored pre-escaped and written
	// as-is.
	p := &message.Part{
		EndOffset: 5,
		BodyData: &message.BodyData{
			Type:       `"application"`,
			SubType:    `"octet-stream"`,
			TypeParams: `"name" "a\"b\\c"`,
		},
	}
	trender(t, p,
		`"application" "octet-stream" ("name" "a\"b\\c") NIL NIL "8bit" 5`,
		`"application" "octet-stream" ("name" "a\"b\\c") NIL NIL "8bit" 5 NIL NIL NIL`,
	)
}
