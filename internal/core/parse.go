package core

// parse.go turns raw CSV text into canonical rows.
//
// Each physical line is one record. Quoted fields may contain commas and
// doubled quotes (""), but a quote left open at the end of a line is closed
// there: values spanning several lines are not supported.

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrMalformedCSV is returned when no rows can be extracted from the input.
var ErrMalformedCSV = errors.New("invalid csv")

// CanonicalRow is one data line after header mapping. Values are trimmed
// raw strings; an empty string means absent.
type CanonicalRow struct {
	Index  int // 1-based data row ordinal, header excluded
	Line   int // physical line number in the file (header is line 1)
	values map[Field]string
}

// NewCanonicalRow builds a row from a field map. The map is copied.
func NewCanonicalRow(index, line int, values map[Field]string) CanonicalRow {
	cp := make(map[Field]string, len(values))
	for k, v := range values {
		cp[k] = strings.TrimSpace(v)
	}
	return CanonicalRow{Index: index, Line: line, values: cp}
}

// Get returns the value of f, or "" when absent.
func (r CanonicalRow) Get(f Field) string {
	return r.values[f]
}

// Has reports whether f carries a non-empty value.
func (r CanonicalRow) Has(f Field) bool {
	return r.values[f] != ""
}

// HasAny reports whether any of fields carries a value.
func (r CanonicalRow) HasAny(fields ...Field) bool {
	for _, f := range fields {
		if r.Has(f) {
			return true
		}
	}
	return false
}

// UnmappedHeader is a header column the field mapper did not recognise.
type UnmappedHeader struct {
	Column     int    `json:"column"`
	Header     string `json:"header"`
	Suggestion Field  `json:"suggestion,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"` // maps to a field already taken by an earlier column
}

// ParseResult is the output of Parse.
type ParseResult struct {
	Rows            []CanonicalRow
	Columns         []Field // mapped fields, in first-seen column order
	UnmappedHeaders []UnmappedHeader
}

// Warnings renders unmapped headers as user-facing notices.
func (p *ParseResult) Warnings() []string {
	var out []string
	for _, u := range p.UnmappedHeaders {
		if u.Duplicate {
			out = append(out, fmt.Sprintf("column %d %q was ignored: %q is already mapped by an earlier column", u.Column, u.Header, u.Suggestion))
			continue
		}
		if u.Suggestion != "" {
			out = append(out, fmt.Sprintf("column %d %q was ignored (did you mean %q?)", u.Column, u.Header, u.Suggestion))
			continue
		}
		out = append(out, fmt.Sprintf("column %d %q was ignored", u.Column, u.Header))
	}
	return out
}

// Parse splits text into canonical rows. A header-only or empty input
// yields zero rows. Binary content or a header line without a single
// recognised column fails with ErrMalformedCSV.
func Parse(text string) (*ParseResult, error) {
	text = sanitizeText(text)
	if strings.ContainsRune(text, 0) {
		return nil, fmt.Errorf("%w: file contains binary data", ErrMalformedCSV)
	}

	lines := strings.Split(text, "\n")
	result := &ParseResult{}

	headerLine := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			headerLine = i
			break
		}
	}
	if headerLine < 0 {
		return result, nil
	}

	// column index -> field; "" for ignored columns
	headers := SplitLine(strings.TrimSuffix(lines[headerLine], "\r"))
	colField := make([]Field, len(headers))
	seen := make(map[Field]bool)
	for i, h := range headers {
		f, ok := MapHeader(h)
		if !ok {
			if strings.TrimSpace(h) != "" {
				u := UnmappedHeader{Column: i + 1, Header: strings.TrimSpace(h)}
				if s, ok := SuggestField(h); ok {
					u.Suggestion = s
				}
				result.UnmappedHeaders = append(result.UnmappedHeaders, u)
			}
			continue
		}
		// first column wins when two headers map to the same field
		if seen[f] {
			result.UnmappedHeaders = append(result.UnmappedHeaders, UnmappedHeader{
				Column: i + 1, Header: strings.TrimSpace(h), Suggestion: f, Duplicate: true,
			})
			continue
		}
		seen[f] = true
		colField[i] = f
		result.Columns = append(result.Columns, f)
	}
	if len(result.Columns) == 0 {
		return nil, fmt.Errorf("%w: no recognised columns in header %q", ErrMalformedCSV, strings.TrimSpace(lines[headerLine]))
	}

	index := 0
	for i := headerLine + 1; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		index++
		cells := SplitLine(line)
		values := make(map[Field]string, len(result.Columns))
		for c, f := range colField {
			if f == "" || c >= len(cells) {
				continue
			}
			values[f] = strings.TrimSpace(cells[c])
		}
		result.Rows = append(result.Rows, CanonicalRow{Index: index, Line: i + 1, values: values})
	}

	return result, nil
}

// SplitLine splits one physical CSV line into raw cells.
func SplitLine(line string) []string {
	var (
		cells    []string
		cur      strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(cells, cur.String())
}

// JoinLine is the inverse of SplitLine: cells containing a comma, quote or
// line break are quoted and inner quotes doubled.
func JoinLine(cells []string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		if strings.ContainsAny(c, ",\"\r\n") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(c, `"`, `""`))
			b.WriteByte('"')
			continue
		}
		b.WriteString(c)
	}
	return b.String()
}

// sanitizeText strips a UTF-8 byte order mark and replaces invalid byte
// sequences with U+FFFD.
func sanitizeText(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	if utf8.ValidString(s) {
		return s
	}

	var buf bytes.Buffer
	buf.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
		} else {
			buf.WriteRune(r)
		}
		s = s[size:]
	}
	return buf.String()
}
