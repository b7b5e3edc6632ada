package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	perrors "github.com/xtxerr/prodstats/internal/errors"
)

// Table is the raw dataset as read from CSV: a header and string rows.
// Short rows are padded so every row has len(Header) fields.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a Table from a header and rows.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows}
	t.buildIndex()
	return t
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.Header[i] = name
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Value returns the trimmed cell of row r in the named column, or "" if
// the column is absent.
func (t *Table) Value(r int, name string) string {
	i := t.ColumnIndex(name)
	if i < 0 || i >= len(t.Rows[r]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[r][i])
}

// ReadTable reads a CSV stream into a Table.
// A malformed stream is a ValidationError.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, perrors.NewValidation("dataset is empty")
		}
		return nil, perrors.NewValidation(fmt.Sprintf("read header: %v", err))
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, perrors.NewValidation(fmt.Sprintf("read row %d: %v", len(rows)+1, err))
		}
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}
		rows = append(rows, rec)
	}

	return NewTable(header, rows), nil
}

// =============================================================================
// Cell parsing
// =============================================================================

// ParseRating parses a rating cell. A null cell yields valid=false and no error.
func ParseRating(s string) (v float64, valid bool, err error) {
	if isNull(s) {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false, fmt.Errorf("rating %q: not a number", s)
	}
	if v < MinRating || v > MaxRating {
		return 0, false, fmt.Errorf("rating %v out of range [%v, %v]", v, MinRating, MaxRating)
	}
	return v, true, nil
}

// ParseCount parses a non-negative integer cell. Empty means 0.
// Float notation with a zero fraction ("12.0") is accepted.
func ParseCount(s string) (int64, error) {
	if isNull(s) {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("count %d is negative", n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("count %q: not an integer", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("count %v is negative", f)
	}
	return int64(f), nil
}

// ParsePrice parses a price cell, stripping a pound sign and thousands
// separators. Empty means null.
func ParsePrice(s string) (v float64, valid bool, err error) {
	s = strings.TrimPrefix(s, "£")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if isNull(s) {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("price %q: not a number", s)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, fmt.Errorf("price %q: not finite", s)
	}
	if v < 0 {
		return 0, false, fmt.Errorf("price %v is negative", v)
	}
	return v, true, nil
}

// ParseBool parses a boolean cell. Empty means false.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes", "y":
		return true, nil
	case "false", "f", "0", "no", "n", "":
		return false, nil
	default:
		return false, fmt.Errorf("bool %q: not a boolean", s)
	}
}

func isNull(s string) bool {
	switch strings.ToLower(s) {
	case "", "null", "nan", "na", "n/a", "none":
		return true
	}
	return false
}
