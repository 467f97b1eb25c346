// Package imapstructure renders the MIME structure of a message as the
// IMAP BODY and BODYSTRUCTURE fetch attributes, and rewrites previously
// rendered BODYSTRUCTURE text into the shorter unextended BODY form.
//
// Rendered text is the bare structure, without enclosing parentheses. A
// FETCH response writer adds those around the whole value.
package imapstructure

import (
	"strings"

	"github.com/mjl-/imapstructure/message"
	"github.com/mjl-/imapstructure/metrics"
)

// Structure of a multipart part without any child parts. Such a message is
// not allowed, we substitute a single zero-length text/plain part.
const emptyStructure = `("text" "plain" ("charset" "us-ascii") NIL NIL "7bit" 0 0)`

// Render returns the BODY (extended false) or BODYSTRUCTURE (extended
// true) form of the part tree rooted at p. Render always succeeds: a part
// with missing or unparseable metadata is rendered with defaults, so even
// a broken message gets a syntactically valid structure.
func Render(p *message.Part, extended bool) string {
	form := "body"
	if extended {
		form = "bodystructure"
	}
	metrics.RenderInc(form)

	var b strings.Builder
	for i, t := range body(p, extended) {
		if i > 0 {
			b.WriteByte(' ')
		}
		t.pack(&b)
	}
	return b.String()
}

// body returns the structure fields of one part. The caller space-joins
// them, wrapping them in parentheses for non-root parts.
func body(p *message.Part, extended bool) []token {
	if p.Multipart {
		return multipartBody(p, extended)
	}
	return leafBody(p, extended)
}

// children renders each child part parenthesized, consecutive children
// concatenated without separator.
func children(parts []*message.Part, extended bool) token {
	var l concat
	for _, cp := range parts {
		l = append(l, listspace(body(cp, extended)))
	}
	return l
}

func multipartBody(p *message.Part, extended bool) []token {
	d := p.BodyData
	if d == nil {
		d = &message.BodyData{}
	}

	var parts token
	if len(p.Parts) > 0 {
		parts = children(p.Parts, extended)
	} else {
		parts = bare(emptyStructure)
	}
	// Unrecognized or missing multipart content-type is treated as
	// multipart/mixed, per RFC 2046.
	l := []token{parts, bareOr(d.SubType, `"mixed"`)}
	if !extended {
		return l
	}
	return append(l,
		parensOrNil(d.TypeParams),
		dispositionToken(d),
		parensOrNil(d.Language),
	)
}

func leafBody(p *message.Part, extended bool) []token {
	d := p.BodyData
	if d == nil {
		// There were no content headers, render an empty structure.
		d = &message.BodyData{}
	}

	l := []token{
		bareOr(d.Type, `"text"`),
		bareOr(d.SubType, `"plain"`),
		parensOrNil(d.TypeParams),
		bareOrNil(d.ID),
		bareOrNil(d.Description),
		bareOr(d.TransferEncoding, `"8bit"`),
		number(p.EndOffset - p.BodyOffset),
	}
	if p.Text {
		// text/* has a line count.
		l = append(l, number(p.RawLineCount))
	} else if p.MessageRFC822 {
		// message/rfc822 has envelope, body structure and line count of
		// the embedded message.
		var child *message.Part
		if len(p.Parts) == 1 {
			child = p.Parts[0]
		}
		if child != nil && child.BodyData != nil && child.BodyData.Envelope != nil {
			l = append(l, envelopeToken(child.BodyData.Envelope))
		} else {
			// Buggy message, no envelope could be derived.
			l = append(l, nilt)
		}
		if child != nil {
			l = append(l, listspace(body(child, extended)))
		} else {
			l = append(l, bare(emptyStructure))
		}
		l = append(l, number(p.RawLineCount))
	}
	if !extended {
		return l
	}
	return append(l,
		bareOrNil(d.MD5),
		dispositionToken(d),
		parensOrNil(d.Language),
	)
}

// dispositionToken renders `(disposition (params))`, the parameter list
// only present when the header had parameters, or NIL without a
// Content-Disposition header.
func dispositionToken(d *message.BodyData) token {
	if d.Disposition == "" {
		return nilt
	}
	if d.DispositionParams == "" {
		return bare("(" + d.Disposition + ")")
	}
	return bare("(" + d.Disposition + " (" + d.DispositionParams + "))")
}

// envelopeToken renders the envelope of an embedded message.
func envelopeToken(env *message.Envelope) token {
	var date token = nilt
	if !env.Date.IsZero() {
		// Date format of RFC 5322.
		date = dquote(env.Date.Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	}
	var subject token = nilt
	if env.Subject != "" {
		subject = dquote(env.Subject)
	}
	var inReplyTo token = nilt
	if env.InReplyTo != "" {
		inReplyTo = dquote(env.InReplyTo)
	}
	var messageID token = nilt
	if env.MessageID != "" {
		messageID = dquote(env.MessageID)
	}

	addresses := func(l []message.Address) token {
		if len(l) == 0 {
			return nilt
		}
		r := listspace{}
		for _, a := range l {
			var name token = nilt
			if a.Name != "" {
				name = dquote(a.Name)
			}
			var host token = nilt
			if a.Host != "" {
				host = dquote(a.Host)
			}
			r = append(r, listspace{name, nilt, dquote(a.User), host})
		}
		return r
	}

	// Empty sender or reply-to fall back to from.
	sender := env.Sender
	if len(sender) == 0 {
		sender = env.From
	}
	replyTo := env.ReplyTo
	if len(replyTo) == 0 {
		replyTo = env.From
	}

	return listspace{
		date,
		subject,
		addresses(env.From),
		addresses(sender),
		addresses(replyTo),
		addresses(env.To),
		addresses(env.CC),
		addresses(env.BCC),
		inReplyTo,
		messageID,
	}
}
