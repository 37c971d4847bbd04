package fetch

// reader.go normalizes upstream bodies while they are read:
//
//   - bomSkippingReader: drops a UTF-8 BOM (0xEF 0xBB 0xBF) added by Windows exports
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?'
//   - countingReader: tracks bytes read for logging and size limits
//
// wrapBody applies all three in the correct order.

import (
	"io"
	"unicode/utf8"
)

// bomSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type bomSkippingReader struct {
	reader  io.Reader
	checked bool
	head    []byte // bytes read while checking for the BOM, not yet returned
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var buf [3]byte
		n, err := io.ReadFull(r.reader, buf[:])
		if n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
			n = 0
		}
		r.head = append(r.head, buf[:n]...)

		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && len(r.head) == 0 {
			return 0, err
		}
	}

	if len(r.head) > 0 {
		n := copy(p, r.head)
		r.head = r.head[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' on the fly. A multi-byte
// sequence split across reads is held back until it is complete.
type utf8Sanitizer struct {
	reader  io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		// Too small to guarantee progress with a held-back sequence.
		buf := make([]byte, utf8.UTFMax)
		n, err := s.Read(buf)
		copied := copy(p, buf[:n])
		if copied < n {
			s.pending = append(buf[copied:n:n], s.pending...)
		}
		return copied, err
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if isASCII(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err != nil), err
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, an incomplete trailing sequence is moved to pending.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if !atEOF && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// countingReader wraps an io.Reader to track bytes read.
type countingReader struct {
	reader    io.Reader
	bytesRead int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

// wrapBody wraps a body with BOM skipping and UTF-8 sanitization, and counts
// the raw bytes pulled from the network.
//
// The order matters:
//  1. counting sits closest to the network so limits apply to raw bytes
//  2. the BOM is stripped before any decoding
//  3. UTF-8 sanitization happens last
func wrapBody(r io.Reader) (io.Reader, *countingReader) {
	counter := &countingReader{reader: r}
	return newUTF8Sanitizer(newBOMSkippingReader(counter)), counter
}
