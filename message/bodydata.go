package message

import (
	"net/textproto"
	"strings"

	"github.com/mjl-/imapstructure/rfc822"
)

// BodyData is the content metadata of one part, each field pre-rendered as
// IMAP wire text ready for embedding in a BODY or BODYSTRUCTURE response.
// A field is the empty string when its header was absent.
type BodyData struct {
	Type              string // E.g. `"text"`.
	SubType           string // E.g. `"plain"`.
	TypeParams        string // Space-joined quoted pairs, e.g. `"charset" "us-ascii"`.
	TransferEncoding  string
	ID                string
	Description       string
	MD5               string
	Disposition       string // Main disposition value, e.g. `"attachment"`.
	DispositionParams string // Same shape as TypeParams.
	Language          string // Space-joined quoted tags, e.g. `"en-US" "az-arabic"`.

	// Envelope of the embedded message. Only meaningful on the sole child
	// of a message/rfc822 part.
	Envelope *Envelope
}

// Each known Content-* header has a handler. The first occurrence of a
// header wins: guard returns whether the target field was already set and
// the header must be ignored. Content-Language has no guard, it is parsed
// again on every occurrence.
type headerHandler struct {
	guard func(d *BodyData) bool
	parse func(d *BodyData, value string)
}

var headerHandlers = map[string]headerHandler{
	"Content-Type":              {func(d *BodyData) bool { return d.Type != "" }, parseContentType},
	"Content-Disposition":       {func(d *BodyData) bool { return d.Disposition != "" }, parseContentDisposition},
	"Content-Transfer-Encoding": {func(d *BodyData) bool { return d.TransferEncoding != "" }, parseContentTransferEncoding},
	"Content-Id":                {func(d *BodyData) bool { return d.ID != "" }, func(d *BodyData, v string) { d.ID = rfc822.Quote(v) }},
	"Content-Description":       {func(d *BodyData) bool { return d.Description != "" }, func(d *BodyData, v string) { d.Description = rfc822.Quote(v) }},
	"Content-Md5":               {func(d *BodyData) bool { return d.MD5 != "" }, func(d *BodyData, v string) { d.MD5 = rfc822.Quote(v) }},
	"Content-Language":          {nil, parseContentLanguage},
}

// classifyHeader processes one header of p, updating p.BodyData. Headers
// must be offered in document order. For the child of a message/rfc822
// part every header is relevant, since the embedded envelope is built from
// them; for any other part only Content-* headers are, the rest is dropped
// without side effect.
func (p *Part) classifyHeader(name, value string) {
	parentRFC822 := p.parent != nil && p.parent.MessageRFC822
	name = textproto.CanonicalMIMEHeaderKey(name)
	if !parentRFC822 && !strings.HasPrefix(name, "Content-") {
		return
	}
	if p.BodyData == nil {
		p.BodyData = &BodyData{}
	}
	if h, ok := headerHandlers[name]; ok {
		if h.guard != nil && h.guard(p.BodyData) {
			return
		}
		h.parse(p.BodyData, value)
	} else if parentRFC822 {
		if p.envb == nil {
			p.envb = &envelopeBuilder{}
		}
		p.envb.add(name, value)
	}
}

// appendParam renders one name=value parameter pair as `"name" "value"`,
// space-joined to earlier pairs in b. Scratch storage is scoped to a
// single header parse: b must be freshly created per header.
func appendParam(b *strings.Builder, name rfc822.Token, value []rfc822.Token) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(rfc822.Quote(name.Text))
	b.WriteByte(' ')
	b.WriteString(rfc822.ValueQuoted(value))
}

func parseContentType(d *BodyData, value string) {
	var params strings.Builder
	rfc822.ParseContentHeader(value, func(l []rfc822.Token) {
		// Split type and subtype on the first "/". Without one, the
		// subtype becomes the empty quoted string.
		i := 0
		for i < len(l) && !(l[i].Kind == rfc822.TokenSpecial && l[i].Char == '/') {
			i++
		}
		d.Type = rfc822.ValueQuoted(l[:i])
		if i < len(l) {
			i++
		}
		d.SubType = rfc822.ValueQuoted(l[i:])
	}, func(name rfc822.Token, value []rfc822.Token) {
		appendParam(&params, name, value)
	})
	d.TypeParams = params.String()
}

func parseContentDisposition(d *BodyData, value string) {
	var params strings.Builder
	rfc822.ParseContentHeader(value, func(l []rfc822.Token) {
		d.Disposition = rfc822.ValueQuoted(l)
	}, func(name rfc822.Token, value []rfc822.Token) {
		appendParam(&params, name, value)
	})
	d.DispositionParams = params.String()
}

func parseContentTransferEncoding(d *BodyData, value string) {
	rfc822.ParseContentHeader(value, func(l []rfc822.Token) {
		d.TransferEncoding = rfc822.ValueQuoted(l)
	}, nil)
}

// parseContentLanguage parses e.g. `en-US, az-arabic (comments allowed)`
// into independently quoted tags, `"en-US" "az-arabic"`. Must never fail:
// only alphabetic characters and "-" are allowed in a tag, so anything
// else is an error we can deal with however we want, and we pass it
// through verbatim. A header without any tag leaves the field untouched.
func parseContentLanguage(d *BodyData, value string) {
	l := rfc822.Tokenize(value)
	if len(l) == 0 {
		return
	}

	var b strings.Builder
	open := false
	for _, t := range l {
		switch {
		case t.Kind == rfc822.TokenComment:
			// Ignore comment.
		case t.Kind == rfc822.TokenSpecial && t.Char == ',':
			// Tag separator.
			if open {
				b.WriteByte('"')
				open = false
			}
		default:
			if !open {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteByte('"')
				open = true
			}
			if t.IsString() {
				b.WriteString(t.Text)
			} else {
				b.WriteByte(t.Char)
			}
		}
	}
	if open {
		b.WriteByte('"')
	}
	if b.Len() > 0 {
		d.Language = b.String()
	}
}
