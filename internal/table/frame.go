package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame is a raw long-format CSV artifact as it comes off storage: a header
// row and string records. Consumers pull typed columns out of it before
// pivoting to wide form.
type Frame struct {
	Header  []string
	Records [][]string
}

// ParseCSV decodes a CSV artifact into a Frame. The first row is the header.
func ParseCSV(data []byte) (*Frame, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse csv: empty artifact")
	}
	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &Frame{Header: header, Records: rows[1:]}, nil
}

// ColumnIndex returns the position of the named header column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, h := range f.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Field returns the value of column col in record rec, or "" when the record
// is short.
func (f *Frame) Field(rec []string, col int) string {
	if col < 0 || col >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[col])
}

// FloatField parses column col of record rec as a float64. Empty cells report
// ok=false rather than an error.
func (f *Frame) FloatField(rec []string, col int) (float64, bool, error) {
	s := f.Field(rec, col)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse float %q: %w", s, err)
	}
	return v, true, nil
}

// DateField parses column col of record rec as a YYYY-MM-DD date.
func (f *Frame) DateField(rec []string, col int) (time.Time, error) {
	s := f.Field(rec, col)
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}
