package message

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/mjl-/imapstructure/mlog"
)

// Envelope holds the basic/common headers of an embedded message, for the
// envelope field of a message/rfc822 body part.
type Envelope struct {
	Date      time.Time
	Subject   string // Q/B-word-decoded.
	From      []Address
	Sender    []Address
	ReplyTo   []Address
	To        []Address
	CC        []Address
	BCC       []Address
	InReplyTo string // From In-Reply-To header, includes <>.
	MessageID string // From Message-Id header, includes <>.
}

// Address as used in From and To headers.
type Address struct {
	Name string // Free-form name for display in mail applications.
	User string // Localpart.
	Host string // Domain.
}

// Headers that contribute to an envelope. Keys in canonical MIME form.
var envelopeHeaders = map[string]bool{
	"Date":        true,
	"Subject":     true,
	"From":        true,
	"Sender":      true,
	"Reply-To":    true,
	"To":          true,
	"Cc":          true,
	"Bcc":         true,
	"In-Reply-To": true,
	"Message-Id":  true,
}

// envelopeBuilder accumulates the headers of the sole child of a
// message/rfc822 part. Only envelope headers are kept, anything else
// offered is dropped.
type envelopeBuilder struct {
	h mail.Header
}

// add records one header in canonical MIME form. Repeated headers are all
// kept, mail.Header.Get returns the first.
func (b *envelopeBuilder) add(name, value string) {
	if !envelopeHeaders[name] {
		return
	}
	if b.h == nil {
		b.h = mail.Header{}
	}
	b.h[name] = append(b.h[name], value)
}

// build returns the accumulated envelope, or nil when no envelope header
// was seen. A nil builder also returns nil, for messages whose embedded
// part had no usable headers at all.
func (b *envelopeBuilder) build(log mlog.Log) *Envelope {
	if b == nil || b.h == nil {
		return nil
	}
	h := b.h

	date, _ := h.Date()
	// Tolerate nonsense dates seen in the wild, like time zones beyond
	// +-24h and years JSON marshalling cannot represent.
	_, offset := date.Zone()
	if date.Year() > 9999 {
		date = time.Time{}
	} else if offset <= -24*3600 || offset >= 24*3600 {
		date = time.Unix(date.Unix(), 0).UTC()
	}

	subject := h.Get("Subject")
	if s, err := wordDecoder.DecodeHeader(subject); err == nil {
		subject = s
	}

	return &Envelope{
		date,
		subject,
		parseAddressList(log, h, "from"),
		parseAddressList(log, h, "sender"),
		parseAddressList(log, h, "reply-to"),
		parseAddressList(log, h, "to"),
		parseAddressList(log, h, "cc"),
		parseAddressList(log, h, "bcc"),
		h.Get("In-Reply-To"),
		h.Get("Message-Id"),
	}
}

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, r io.Reader) (io.Reader, error) {
		switch strings.ToLower(charset) {
		case "", "us-ascii", "utf-8":
			return r, nil
		}
		enc, _ := ianaindex.MIME.Encoding(charset)
		if enc == nil {
			enc, _ = ianaindex.IANA.Encoding(charset)
		}
		if enc == nil {
			return r, fmt.Errorf("unknown charset %q", charset)
		}
		return enc.NewDecoder().Reader(r), nil
	},
}

func parseAddressList(log mlog.Log, h mail.Header, k string) []Address {
	v := h.Get(k)
	if v == "" {
		return nil
	}
	parser := mail.AddressParser{WordDecoder: &wordDecoder}
	l, err := parser.ParseList(v)
	if err != nil {
		return nil
	}
	var r []Address
	for _, a := range l {
		var user, host string
		if i := strings.LastIndex(a.Address, "@"); i >= 0 {
			user, host = a.Address[:i], a.Address[i+1:]
		} else {
			log.Info("address without at-sign, continuing", slog.String("address", a.Address))
			user = a.Address
		}
		r = append(r, Address{a.Name, user, host})
	}
	return r
}
