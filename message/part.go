// Package message parses MIME messages into a tree of parts annotated with
// the content metadata needed for writing IMAP BODY and BODYSTRUCTURE
// responses.
//
// The parser is permissive. Messages in the wild are frequently malformed
// and a fetch response must still be written for them: unparseable
// content-type headers, a multipart without boundary and a missing closing
// boundary all result in a usable, if degraded, part tree.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/mjl-/imapstructure/mlog"
)

var errLineTooLong = errors.New("line too long")

// Part is one node of a message's MIME structure: the whole message, a
// multipart container, or a leaf with content.
type Part struct {
	// Shape of the part, at most one is set. A leaf with none of these set
	// has some other media type, e.g. application or image.
	Multipart     bool // Content is a sequence of child parts.
	Text          bool // text/*, also when no content-type is present (text/plain is the default).
	MessageRFC822 bool // Content is one embedded message, the sole child part.

	HeaderOffset int64 // Offset in message where the header starts.
	BodyOffset   int64 // Offset in message where the body starts.
	EndOffset    int64 // Offset in message where the body ends.
	RawLineCount int64 // Number of lines in the raw body.

	MediaType    string // From Content-Type, upper case, e.g. "TEXT". Empty when absent or unrecoverable.
	MediaSubType string // E.g. "PLAIN".

	Parts []*Part // Child parts, in order. For MessageRFC822 exactly one.

	// BodyData is the content metadata used for rendering, attached on the
	// first relevant header. Nil when the part had no relevant headers.
	BodyData *BodyData

	parent *Part
	bound  []byte // "--boundary", only for multipart with a boundary parameter.
	envb   *envelopeBuilder
}

// Parse reads a message and returns its annotated part tree.
//
// Errors are only returned for broken framing, such as overlong lines or
// unreadable input. Unparseable headers degrade, they don't fail.
func Parse(elog *slog.Logger, r io.ReaderAt) (*Part, error) {
	log := mlog.New("message", elog)
	lr := &lineReader{r: r}
	return parsePart(log, lr, nil, nil)
}

// EnsurePart parses a message as with Parse, but always returns a usable
// part, also when the returned error is non-nil. On error, the part is a
// childless part covering the whole message body, keeping the shape flags
// and whatever metadata could still be read from the header so it renders
// consistently.
func EnsurePart(elog *slog.Logger, r io.ReaderAt, size int64) (*Part, error) {
	p, err := Parse(elog, r)
	if err != nil {
		np := &Part{
			Multipart:     p.Multipart,
			Text:          p.Text,
			MessageRFC822: p.MessageRFC822,
			HeaderOffset:  p.HeaderOffset,
			BodyOffset:    p.BodyOffset,
			EndOffset:     size,
			BodyData:      p.BodyData,
		}
		if np.BodyOffset > size {
			np.BodyOffset = size
		}
		np.RawLineCount = countLines(r, np.BodyOffset, size)
		p = np
	}
	return p, err
}

type headerField struct {
	name  string
	value string
}

func parsePart(log mlog.Log, lr *lineReader, parent *Part, bounds [][]byte) (*Part, error) {
	p := &Part{HeaderOffset: lr.offset, EndOffset: -1, parent: parent}

	fields, err := readHeader(lr)
	if err != nil {
		return p, err
	}
	p.BodyOffset = lr.offset

	// The structure of the part is decided by the first Content-Type header.
	var boundary string
	for _, f := range fields {
		if strings.EqualFold(f.name, "Content-Type") {
			var params map[string]string
			p.MediaType, p.MediaSubType, params = parseStructureType(log, f.value)
			boundary = params["boundary"]
			break
		}
	}
	switch {
	case p.MediaType == "MULTIPART":
		p.Multipart = true
	case p.MediaType == "MESSAGE" && p.MediaSubType == "RFC822":
		p.MessageRFC822 = true
	case p.MediaType == "TEXT" || p.MediaType == "":
		p.Text = true
	}

	// Annotate content metadata, visiting the headers in document order.
	for _, f := range fields {
		p.classifyHeader(f.name, f.value)
	}
	if parent != nil && parent.MessageRFC822 && p.BodyData != nil {
		p.BodyData.Envelope = p.envb.build(log)
	}

	startLines := lr.lines
	if p.Multipart && boundary != "" {
		p.bound = append([]byte("--"), boundary...)
		err = parseMultipartBody(log, lr, p, bounds)
	} else if p.MessageRFC822 {
		var mp *Part
		mp, err = parsePart(log, lr, p, bounds)
		p.Parts = append(p.Parts, mp)
	} else {
		if p.Multipart {
			log.Debug("multipart without boundary parameter, treating as leaf")
		}
		err = skipBody(lr, bounds)
	}
	p.EndOffset = lr.offset
	p.RawLineCount = lr.lines - startLines
	return p, err
}

// readHeader reads header lines up to and including the blank separator
// line, unfolding continuation lines. Lines without colon are dropped. A
// message without body is valid, the header then ends at end of input.
func readHeader(lr *lineReader) ([]headerField, error) {
	var l []headerField
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return l, fmt.Errorf("reading header line: %w", err)
		}
		s := strings.TrimRight(string(line), "\r\n")
		if s == "" {
			break
		}
		if s[0] == ' ' || s[0] == '\t' {
			if len(l) > 0 {
				l[len(l)-1].value += " " + strings.Trim(s, " \t")
			}
			continue
		}
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			continue
		}
		// White space before the colon is not allowed, but occurs in the
		// wild and the header is still recognizable.
		l = append(l, headerField{strings.TrimRight(name, " \t"), strings.TrimLeft(value, " \t")})
	}
	return l, nil
}

// parseStructureType parses a Content-Type value for making structure
// decisions, returning upper-cased type and subtype and the parameters.
// Attempts recovery on malformed values, like a missing parameter: we
// cannot recover a multipart (no boundary), but a plain type/subtype is
// still usable.
func parseStructureType(log mlog.Log, v string) (mediatype, mediasubtype string, params map[string]string) {
	mt, params, err := mime.ParseMediaType(v)
	if err == nil {
		t := strings.SplitN(strings.ToUpper(mt), "/", 2)
		if len(t) == 2 {
			return t[0], t[1], params
		}
		err = fmt.Errorf("media type without subtype: %q", mt)
	}

	v = strings.TrimSpace(strings.SplitN(v, ";", 2)[0])
	t := strings.SplitN(v, "/", 2)
	isToken := func(s string) bool {
		const separators = `()<>@,;:\"/[]?= `
		for _, c := range s {
			if c < 0x20 || c >= 0x80 || strings.ContainsRune(separators, c) {
				return false
			}
		}
		return len(s) > 0
	}
	if len(t) == 2 && isToken(t[0]) && !strings.EqualFold(t[0], "multipart") && isToken(t[1]) {
		mediatype = strings.ToUpper(t[0])
		mediasubtype = strings.ToUpper(t[1])
	} else {
		mediatype = "APPLICATION"
		mediasubtype = "OCTET-STREAM"
	}
	log.Debugx("malformed content-type, attempting to recover and continuing", err,
		slog.String("contenttype", v),
		slog.String("mediatype", mediatype),
		slog.String("mediasubtype", mediasubtype))
	return mediatype, mediasubtype, nil
}

// parseMultipartBody reads the multipart body of p: preamble, the child
// parts separated by p.bound, and the epilogue. A missing closing boundary
// is tolerated, the parts then end at end of input or at an enclosing
// boundary.
func parseMultipartBody(log mlog.Log, lr *lineReader, p *Part, bounds [][]byte) error {
	// Preamble, until the first boundary.
	for {
		line, err := lr.PeekLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading line for part preamble: %w", err)
		}
		if matchAnyBound(line, bounds) {
			log.Debug("multipart without any own boundary, no parts")
			return nil
		}
		if match, _ := checkBound(line, p.bound); match {
			break
		}
		lr.ReadLine()
	}

	childBounds := make([][]byte, 0, len(bounds)+1)
	childBounds = append(childBounds, bounds...)
	childBounds = append(childBounds, p.bound)

	for {
		line, err := lr.PeekLine()
		if err == io.EOF {
			log.Debug("multipart without closing boundary")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading line for part boundary: %w", err)
		}
		match, finish := checkBound(line, p.bound)
		if !match {
			if matchAnyBound(line, bounds) {
				log.Debug("multipart closed by enclosing boundary")
				return nil
			}
			// Data between parts, skip it.
			lr.ReadLine()
			continue
		}
		lr.ReadLine()
		if finish {
			break
		}
		np, err := parsePart(log, lr, p, childBounds)
		p.Parts = append(p.Parts, np)
		if err != nil {
			return err
		}
	}

	// Epilogue, until end of input or an enclosing boundary.
	return skipBody(lr, bounds)
}

// skipBody consumes lines until end of input or an enclosing boundary. The
// boundary line itself is left unconsumed for the enclosing multipart.
func skipBody(lr *lineReader, bounds [][]byte) error {
	for {
		line, err := lr.PeekLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading body line: %w", err)
		}
		if matchAnyBound(line, bounds) {
			return nil
		}
		lr.ReadLine()
	}
}

func matchAnyBound(line []byte, bounds [][]byte) bool {
	for _, b := range bounds {
		if match, _ := checkBound(line, b); match {
			return true
		}
	}
	return false
}

// checkBound returns whether line starts the given boundary, and whether it
// is the closing variant. The line may include its line ending. For
// compatibility, text after the boundary is allowed only when separated by
// white space: some software reuses a boundary with text appended for sub
// parts.
func checkBound(line, bound []byte) (match, finish bool) {
	if !bytes.HasPrefix(line, bound) {
		return false, false
	}
	line = line[len(bound):]
	if bytes.HasPrefix(line, []byte("--")) {
		return true, true
	}
	if len(line) == 0 {
		return true, false
	}
	switch line[0] {
	case ' ', '\t', '\r', '\n':
		return true, false
	}
	return false, false
}

// Messages should not have lines longer than 78+2 bytes, and must not have
// lines longer than 998+2 bytes. In practice they have longer lines, so we
// use a higher limit.
const maxLineLength = 8 * 1024

// lineReader is a buffered line reader on an underlying ReaderAt, tracking
// the consumed offset and the number of consumed lines. Lines may end in
// crlf or bare lf.
type lineReader struct {
	r       io.ReaderAt
	offset  int64 // Offset in r of the first unconsumed byte.
	lines   int64 // Newline-terminated lines consumed so far.
	buf     []byte
	nbuf    int // Valid bytes in buf.
	scratch []byte
}

// ensure fills buf up to maxLineLength, unless a newline or end of input is
// already buffered.
func (b *lineReader) ensure() error {
	if bytes.IndexByte(b.buf[:b.nbuf], '\n') >= 0 {
		return nil
	}
	if b.buf == nil {
		b.buf = make([]byte, maxLineLength)
		b.scratch = make([]byte, maxLineLength)
	}
	for b.nbuf < maxLineLength {
		n, err := b.r.ReadAt(b.buf[b.nbuf:], b.offset+int64(b.nbuf))
		if n > 0 {
			b.nbuf += n
		}
		if err == io.EOF || n == 0 {
			break
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (b *lineReader) ReadLine() ([]byte, error) { return b.line(true) }
func (b *lineReader) PeekLine() ([]byte, error) { return b.line(false) }

// line returns the next line, including any trailing newline. At the end
// of input, io.EOF is returned. The returned buffer is valid until the
// next call.
func (b *lineReader) line(consume bool) ([]byte, error) {
	if err := b.ensure(); err != nil {
		return nil, err
	}
	if b.nbuf == 0 {
		return nil, io.EOF
	}
	i := bytes.IndexByte(b.buf[:b.nbuf], '\n')
	if i < 0 {
		if b.nbuf >= maxLineLength {
			return nil, errLineTooLong
		}
		// Unterminated last line.
		i = b.nbuf - 1
	}
	n := i + 1
	b.scratch = b.scratch[:n]
	copy(b.scratch, b.buf[:n])
	if consume {
		copy(b.buf, b.buf[n:b.nbuf])
		b.offset += int64(n)
		b.nbuf -= n
		if b.scratch[n-1] == '\n' {
			b.lines++
		}
	}
	return b.scratch, nil
}

// countLines counts newlines in r between offset and end, for the fallback
// part of EnsurePart.
func countLines(r io.ReaderAt, offset, end int64) int64 {
	var lines int64
	buf := make([]byte, 8*1024)
	for offset < end {
		n, err := r.ReadAt(buf, offset)
		if n > int(end-offset) {
			n = int(end - offset)
		}
		lines += int64(bytes.Count(buf[:n], []byte("\n")))
		offset += int64(n)
		if err != nil || n == 0 {
			break
		}
	}
	return lines
}
