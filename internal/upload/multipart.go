package upload

import (
	"bytes"
	"errors"
	"io"
	"net/textproto"
	"strings"
)

// ErrUnexpectedEOF means a part was opened but its closing delimiter never came.
var ErrUnexpectedEOF = errors.New("multipart: unexpected end of body")

var crlf = []byte("\r\n")

// Part is one segment of a multipart/form-data body. Content aliases the
// buffer passed to NewReader.
type Part struct {
	Header    textproto.MIMEHeader
	FieldName string
	Filename  string
	Content   []byte
}

type state int

const (
	seekFirst state = iota // preamble: looking for the first delimiter
	afterDelim             // just past "--boundary"
	inHeaders
	finished
)

// Reader walks a fully buffered multipart body. A delimiter is only
// recognised at the start of the body or right after CRLF, and only if it is
// followed by "--", optional whitespace and CRLF, or the end of input, so file
// bytes that merely contain the boundary text are kept intact. Segments
// without a blank line between headers and body are skipped.
type Reader struct {
	buf    []byte
	delim  []byte // "--" + boundary
	needle []byte // CRLF + delim
	pos    int
	st     state
}

func NewReader(body []byte, boundary string) *Reader {
	delim := []byte("--" + boundary)
	return &Reader{buf: body, delim: delim, needle: append(append([]byte(nil), crlf...), delim...)}
}

// Next returns the next well-formed part, or io.EOF after the final delimiter.
func (r *Reader) Next() (*Part, error) {
	for {
		switch r.st {
		case seekFirst:
			if bytes.HasPrefix(r.buf, r.delim) && r.isDelimiterAt(0) {
				r.pos = len(r.delim)
				r.st = afterDelim
				continue
			}
			i := r.findDelimiter(0)
			if i < 0 {
				r.st = finished
				continue
			}
			r.pos = i + len(crlf) + len(r.delim)
			r.st = afterDelim

		case afterDelim:
			rest := r.buf[r.pos:]
			if bytes.HasPrefix(rest, []byte("--")) || len(rest) == 0 {
				r.st = finished
				continue
			}
			r.pos += lwsLen(rest)
			// isDelimiterAt guarantees CRLF here
			r.pos += len(crlf)
			r.st = inHeaders

		case inHeaders:
			next := r.findDelimiter(r.pos)
			headerEnd, bodyStart := r.headerBounds(r.pos, next)
			if headerEnd < 0 {
				// malformed segment: no header/body separator before the next delimiter
				if next < 0 {
					r.st = finished
					continue
				}
				r.pos = next + len(crlf) + len(r.delim)
				r.st = afterDelim
				continue
			}
			if next < 0 {
				r.st = finished
				return nil, ErrUnexpectedEOF
			}
			p := newPart(r.buf[r.pos:headerEnd], r.buf[bodyStart:next])
			r.pos = next + len(crlf) + len(r.delim)
			r.st = afterDelim
			return p, nil

		case finished:
			return nil, io.EOF
		}
	}
}

// headerBounds finds the blank line ending the header block that starts at
// from. A separator whose body would begin past limit (the next delimiter,
// or -1 for none) does not count.
func (r *Reader) headerBounds(from, limit int) (headerEnd, bodyStart int) {
	headerEnd, bodyStart = -1, -1
	if bytes.HasPrefix(r.buf[from:], crlf) {
		headerEnd, bodyStart = from, from+len(crlf)
	} else if i := bytes.Index(r.buf[from:], []byte("\r\n\r\n")); i >= 0 {
		headerEnd, bodyStart = from+i, from+i+4
	}
	if headerEnd < 0 || (limit >= 0 && bodyStart > limit) {
		return -1, -1
	}
	return headerEnd, bodyStart
}

// findDelimiter returns the index of the CRLF preceding the next real
// delimiter at or after from, or -1.
func (r *Reader) findDelimiter(from int) int {
	for from <= len(r.buf) {
		i := bytes.Index(r.buf[from:], r.needle)
		if i < 0 {
			return -1
		}
		i += from
		if r.isDelimiterAt(i + len(crlf)) {
			return i
		}
		from = i + 1
	}
	return -1
}

// isDelimiterAt reports whether the delimiter starting at i is a real one:
// followed by "--", or by optional whitespace and CRLF, or by end of input.
func (r *Reader) isDelimiterAt(i int) bool {
	rest := r.buf[i+len(r.delim):]
	if len(rest) == 0 || bytes.HasPrefix(rest, []byte("--")) {
		return true
	}
	rest = rest[lwsLen(rest):]
	return bytes.HasPrefix(rest, crlf)
}

func lwsLen(b []byte) int {
	n := 0
	for n < len(b) && (b[n] == ' ' || b[n] == '\t') {
		n++
	}
	return n
}

func newPart(rawHeader, content []byte) *Part {
	h := textproto.MIMEHeader{}
	for _, line := range strings.Split(string(rawHeader), "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		h.Add(textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k)), strings.TrimSpace(v))
	}
	p := &Part{Header: h, Content: content}
	if cd := h.Get("Content-Disposition"); cd != "" {
		p.FieldName, _ = dispositionParam(cd, "name")
		p.Filename, _ = dispositionParam(cd, "filename")
	}
	return p
}

// dispositionParam extracts key from a Content-Disposition value. Quoted
// values are taken verbatim up to the next '"', with no escape processing,
// so Windows paths like "C:\dir\a.txt" survive for base-name stripping.
func dispositionParam(v, key string) (string, bool) {
	i := strings.IndexByte(v, ';')
	for i >= 0 && i < len(v) {
		s := strings.TrimLeft(v[i+1:], " \t")
		off := len(v) - len(s)
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return "", false
		}
		name := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]
		off += eq + 1
		var val string
		var end int
		if strings.HasPrefix(s, `"`) {
			q := strings.IndexByte(s[1:], '"')
			if q < 0 {
				val, end = s[1:], len(s)
			} else {
				val, end = s[1:1+q], q+2
			}
		} else {
			semi := strings.IndexByte(s, ';')
			if semi < 0 {
				semi = len(s)
			}
			val, end = strings.TrimSpace(s[:semi]), semi
		}
		if name == key {
			return val, true
		}
		next := strings.IndexByte(s[end:], ';')
		if next < 0 {
			return "", false
		}
		i = off + end + next
	}
	return "", false
}
