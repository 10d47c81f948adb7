package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// rowReader yields header-addressed records from a delimited stream.
type rowReader struct {
	csv     *csv.Reader
	columns map[string]int
	headers []string
}

func newRowReader(r io.Reader, keyColumn string) (*rowReader, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	// A bare quote inside a field (12" pipe) is part of the value.
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{Column: keyColumn}
	}
	if err != nil {
		return nil, err
	}

	rr := &rowReader{
		csv:     cr,
		columns: make(map[string]int, len(header)),
		headers: make([]string, 0, len(header)),
	}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		rr.headers = append(rr.headers, name)
		if _, seen := rr.columns[name]; !seen {
			rr.columns[name] = i
		}
	}
	if _, ok := rr.columns[keyColumn]; !ok {
		return nil, &SchemaError{Column: keyColumn, Headers: rr.headers}
	}
	return rr, nil
}

// next returns the next record and its starting line. A record the lenient
// reader still rejects is returned as *csv.ParseError; reading may continue
// afterwards.
func (rr *rowReader) next() (record, int, error) {
	fields, err := rr.csv.Read()
	if err != nil {
		return record{}, 0, err
	}
	line, _ := rr.csv.FieldPos(0)
	return record{fields: fields, columns: rr.columns}, line, nil
}

type record struct {
	fields  []string
	columns map[string]int
}

// get returns the trimmed value of a column; missing columns and short rows read as empty.
func (r record) get(column string) string {
	idx, ok := r.columns[column]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func isParseError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}
