package infer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultDelimiter is used when the caller supplies an empty delimiter.
const DefaultDelimiter = ","

var (
	// ErrNoHeader is returned when the text holds no records at all.
	ErrNoHeader = errors.New("invalid csv: no header record")

	// ErrBadDelimiter is returned for delimiters that are not a single
	// usable character.
	ErrBadDelimiter = errors.New("invalid csv: delimiter must be a single character")
)

// ParseDelimiter validates a delimiter string. Empty selects the default.
func ParseDelimiter(delimiter string) (rune, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	r, size := utf8.DecodeRuneInString(delimiter)
	if size != len(delimiter) || r == utf8.RuneError {
		return 0, fmt.Errorf("%w: %q", ErrBadDelimiter, delimiter)
	}
	switch r {
	case '"', '\r', '\n':
		return 0, fmt.Errorf("%w: %q", ErrBadDelimiter, delimiter)
	}
	return r, nil
}

// Tokenize splits text into its header record and dynamically typed data
// records. Records are separated by newlines; a carriage return before the
// newline is not part of the last field. Quoted fields may span lines.
// After the header, an empty line is a record holding a single null cell;
// the newline ending the text does not start another record.
// A leading byte order mark is dropped and invalid UTF-8 is replaced.
func Tokenize(text, delimiter string) ([]string, [][]RawCell, error) {
	comma, err := ParseDelimiter(delimiter)
	if err != nil {
		return nil, nil, err
	}

	text = strings.TrimPrefix(text, "\uFEFF")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	// encoding/csv skips empty lines. lines tracks the line number at the
	// reader's offset so the skipped ones can be put back.
	lines := lineCounter{text: text, line: 1}

	var header []string
	var records [][]RawCell
	for {
		offset := r.InputOffset()
		start := lines.at(offset)
		fields, err := r.Read()
		if err == io.EOF {
			if header != nil {
				records = appendBlank(records, strings.Count(text[offset:], "\n"))
			}
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid csv: %w", err)
		}

		if header == nil {
			header = fields
			continue
		}

		line, _ := r.FieldPos(0)
		records = appendBlank(records, line-start)

		cells := make([]RawCell, len(fields))
		for i, f := range fields {
			cells[i] = DynamicCell(f)
		}
		records = append(records, cells)
	}

	if header == nil {
		return nil, nil, ErrNoHeader
	}
	return header, records, nil
}

// appendBlank appends n empty-line records.
func appendBlank(records [][]RawCell, n int) [][]RawCell {
	for ; n > 0; n-- {
		records = append(records, []RawCell{NullCell()})
	}
	return records
}

// lineCounter maps increasing byte offsets of text to 1-based line numbers.
type lineCounter struct {
	text   string
	offset int64
	line   int
}

func (c *lineCounter) at(offset int64) int {
	c.line += strings.Count(c.text[c.offset:offset], "\n")
	c.offset = offset
	return c.line
}
