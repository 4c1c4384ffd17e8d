package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNoRows is returned when a file holds no non-blank rows.
	ErrNoRows = errors.New("file has no rows")
	// ErrMalformedCSV wraps every error caused by the file's contents rather
	// than by the reader.
	ErrMalformedCSV = errors.New("malformed CSV")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one decoded line of a delimited file.
type Row struct {
	Line   int // 1-based line number in the source file
	Values []string
}

// ReadRows decodes every non-blank row of a comma-separated file. Rows may
// have differing field counts.
func ReadRows(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", malformed(err))
		}
		if blankRecord(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, Row{Line: line, Values: rec})
	}
	return rows, nil
}

// malformed tags csv syntax errors with ErrMalformedCSV and leaves I/O
// errors alone.
func malformed(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}
	return err
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// cell returns the trimmed value at index i, or "" when the row is too short.
func (r Row) cell(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return strings.TrimSpace(r.Values[i])
}
