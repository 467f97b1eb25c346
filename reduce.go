package imapstructure

import (
	"strings"

	"github.com/mjl-/imapstructure/metrics"
)

// BodyFromBodystructure rewrites previously rendered BODYSTRUCTURE text
// into the unextended BODY form, without access to the original message:
// the extended md5/disposition/language fields are dropped at every level
// and multiparts keep only their child parts and subtype. Input and output
// are the bare structure, without enclosing parentheses, as produced by
// Render.
//
// On any grammar mismatch an error wrapping ErrMalformedStructure is
// returned, with no partial output.
func BodyFromBodystructure(bodystructure string) (body string, rerr error) {
	defer func() {
		x := recover()
		if x == nil {
			metrics.ReduceInc("ok")
			return
		}
		e, ok := x.(parseError)
		if !ok {
			panic(x)
		}
		metrics.ReduceInc("malformed")
		rerr = e.err
	}()

	p := &parser{s: bodystructure}
	args := p.xargs()
	if !p.empty() {
		p.xerrorf("leftover data")
	}

	var b strings.Builder
	reduceArgs(&b, args)
	return b.String(), nil
}

// reduceArgs writes the BODY form of the arguments of one level. Leading
// lists classify the level as a multipart, otherwise it is a single part.
func reduceArgs(b *strings.Builder, args []arg) {
	i := 0
	for i < len(args) && args[i].kind == argList {
		b.WriteByte('(')
		reduceArgs(b, args[i].list)
		b.WriteByte(')')
		i++
	}
	if i > 0 {
		// Multipart: the content-type subtype follows the child parts.
		// Everything after it is dropped.
		if i >= len(args) || args[i].kind != argString {
			xmalformedf("expected multipart subtype string after child parts")
		}
		b.WriteByte(' ')
		dquote(args[i].s).pack(b)
		return
	}

	// Single part, starting with type and subtype.
	if len(args) < 2 {
		xmalformedf("need at least a type and subtype")
	}
	if args[0].kind != argString || args[1].kind != argString {
		xmalformedf("type and subtype must be strings")
	}
	isText := strings.EqualFold(args[0].s, "text")
	isMessageRFC822 := strings.EqualFold(args[0].s, "message") && strings.EqualFold(args[1].s, "rfc822")
	dquote(args[0].s).pack(b)
	b.WriteByte(' ')
	dquote(args[1].s).pack(b)
	args = args[2:]

	// Content-type parameters: a list of name/value string pairs, or NIL.
	// Copied through unchanged, not re-interpreted.
	if len(args) == 0 {
		xmalformedf("missing content-type parameters")
	}
	switch args[0].kind {
	case argList:
		l := args[0].list
		if len(l)%2 != 0 {
			xmalformedf("parameter list with odd number of items")
		}
		b.WriteString(" (")
		for j := 0; j < len(l); j += 2 {
			if l[j].kind != argString || l[j+1].kind != argString {
				xmalformedf("parameter name and value must be strings")
			}
			if j > 0 {
				b.WriteByte(' ')
			}
			dquote(l[j].s).pack(b)
			b.WriteByte(' ')
			dquote(l[j+1].s).pack(b)
		}
		b.WriteString(")")
	case argNIL:
		b.WriteString(" NIL")
	default:
		xmalformedf("content-type parameters must be a list or NIL")
	}
	args = args[1:]

	// Content-id, content-description, transfer encoding and size are
	// copied verbatim whatever their kind, sizes without numeric
	// validation.
	if len(args) < 4 {
		xmalformedf("missing body fields")
	}
	for _, a := range args[:4] {
		b.WriteByte(' ')
		writeArg(b, a)
	}
	args = args[4:]

	if isText {
		// text/* has a line count.
		if len(args) == 0 || args[0].kind != argAtom {
			xmalformedf("expected line count atom for text part")
		}
		b.WriteByte(' ')
		b.WriteString(args[0].s)
	} else if isMessageRFC822 {
		// message/rfc822 has envelope, body structure and line count of
		// the embedded message.
		if len(args) < 3 || args[0].kind != argList || args[1].kind != argList || args[2].kind != argAtom {
			xmalformedf("expected envelope, bodystructure and line count for message/rfc822 part")
		}
		b.WriteByte(' ')
		writeList(b, args[0].list)
		b.WriteByte(' ')
		reduceArgs(b, args[1].list)
		b.WriteByte(' ')
		b.WriteString(args[2].s)
	}
	// Any remaining extended fields are dropped.
}

// writeArg copies one non-list argument verbatim.
func writeArg(b *strings.Builder, a arg) {
	switch a.kind {
	case argNIL:
		b.WriteString("NIL")
	case argAtom:
		b.WriteString(a.s)
	case argString:
		dquote(a.s).pack(b)
	default:
		xmalformedf("unexpected list argument")
	}
}

// writeList copies an argument list verbatim, recursing into nested lists.
// Used for the envelope, whose internal grammar is opaque here.
func writeList(b *strings.Builder, l []arg) {
	b.WriteByte('(')
	for i, a := range l {
		if i > 0 {
			b.WriteByte(' ')
		}
		if a.kind == argList {
			writeList(b, a.list)
		} else {
			writeArg(b, a)
		}
	}
	b.WriteByte(')')
}
