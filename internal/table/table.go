// Package table implements the wide-table data structure shared by the data
// access layer, the alpha algebra and the operator catalogue. A wide table
// has one row per date (unique, ascending) and one column per security;
// cells are float64 with NaN marking missing values.
package table

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DateLayout is the on-disk date format used across the data lake.
const DateLayout = "2006-01-02"

// WideTable holds dates as rows and securities as columns. The zero value is
// not usable; construct with New or a Builder. Accessors return the backing
// slices for cheap reads: callers must treat them as read-only. All
// transforming methods allocate fresh storage.
type WideTable struct {
	dates   []time.Time
	columns []string
	values  [][]float64
}

// New validates and wraps the given rows. dates must be unique and strictly
// ascending, columns unique, and values shaped len(dates) x len(columns).
func New(dates []time.Time, columns []string, values [][]float64) (*WideTable, error) {
	if len(values) != len(dates) {
		return nil, fmt.Errorf("table: %d rows of values for %d dates", len(values), len(dates))
	}
	for i, row := range values {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("table: row %d has %d cells for %d columns", i, len(row), len(columns))
		}
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			return nil, fmt.Errorf("table: dates not strictly ascending at index %d (%s >= %s)",
				i, dates[i-1].Format(DateLayout), dates[i].Format(DateLayout))
		}
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	return &WideTable{dates: dates, columns: columns, values: values}, nil
}

// Dates returns the row axis. Read-only.
func (t *WideTable) Dates() []time.Time { return t.dates }

// Columns returns the column axis. Read-only.
func (t *WideTable) Columns() []string { return t.columns }

// NumRows returns the number of date rows.
func (t *WideTable) NumRows() int { return len(t.dates) }

// NumColumns returns the number of security columns.
func (t *WideTable) NumColumns() int { return len(t.columns) }

// Cell returns the value at row i, column j.
func (t *WideTable) Cell(i, j int) float64 { return t.values[i][j] }

// Row returns row i. Read-only.
func (t *WideTable) Row(i int) []float64 { return t.values[i] }

// ColumnIndex returns the position of the named column, or -1.
func (t *WideTable) ColumnIndex(name string) int {
	for j, c := range t.columns {
		if c == name {
			return j
		}
	}
	return -1
}

// Clone returns a deep copy.
func (t *WideTable) Clone() *WideTable {
	dates := make([]time.Time, len(t.dates))
	copy(dates, t.dates)
	columns := make([]string, len(t.columns))
	copy(columns, t.columns)
	values := make([][]float64, len(t.values))
	for i, row := range t.values {
		values[i] = make([]float64, len(row))
		copy(values[i], row)
	}
	return &WideTable{dates: dates, columns: columns, values: values}
}

// Map applies f to every cell, returning a new table with the same axes.
func (t *WideTable) Map(f func(float64) float64) *WideTable {
	out := t.Clone()
	for i := range out.values {
		for j := range out.values[i] {
			out.values[i][j] = f(out.values[i][j])
		}
	}
	return out
}

// Combine merges two tables cell-wise with f. Axes are taken from t; the
// caller is responsible for alignment (the alpha layer validates it).
func (t *WideTable) Combine(other *WideTable, f func(a, b float64) float64) *WideTable {
	out := t.Clone()
	for i := range out.values {
		for j := range out.values[i] {
			out.values[i][j] = f(t.values[i][j], other.values[i][j])
		}
	}
	return out
}

// SelectColumns reorders columns to match order, silently dropping names the
// table does not have. Returns the surviving order alongside the table.
func (t *WideTable) SelectColumns(order []string) *WideTable {
	idx := make([]int, 0, len(order))
	cols := make([]string, 0, len(order))
	for _, name := range order {
		if j := t.ColumnIndex(name); j >= 0 {
			idx = append(idx, j)
			cols = append(cols, name)
		}
	}
	values := make([][]float64, len(t.dates))
	for i := range t.values {
		row := make([]float64, len(idx))
		for k, j := range idx {
			row[k] = t.values[i][j]
		}
		values[i] = row
	}
	dates := make([]time.Time, len(t.dates))
	copy(dates, t.dates)
	return &WideTable{dates: dates, columns: cols, values: values}
}

// FilterDates keeps rows with start <= date <= end.
func (t *WideTable) FilterDates(start, end time.Time) *WideTable {
	dates := make([]time.Time, 0, len(t.dates))
	values := make([][]float64, 0, len(t.values))
	for i, d := range t.dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		dates = append(dates, d)
		row := make([]float64, len(t.values[i]))
		copy(row, t.values[i])
		values = append(values, row)
	}
	columns := make([]string, len(t.columns))
	copy(columns, t.columns)
	return &WideTable{dates: dates, columns: columns, values: values}
}

// OuterJoin merges two tables on the date axis: the result holds the union of
// dates (ascending) and the concatenation of columns. Where both tables carry
// the same column, non-NaN cells from t win and other fills the gaps.
func (t *WideTable) OuterJoin(other *WideTable) *WideTable {
	columns := make([]string, len(t.columns))
	copy(columns, t.columns)
	colIdx := make(map[string]int, len(columns))
	for j, c := range columns {
		colIdx[c] = j
	}
	otherCol := make([]int, len(other.columns)) // position in merged columns
	for j, c := range other.columns {
		if k, ok := colIdx[c]; ok {
			otherCol[j] = k
			continue
		}
		colIdx[c] = len(columns)
		otherCol[j] = len(columns)
		columns = append(columns, c)
	}

	dateSet := make(map[time.Time]struct{}, len(t.dates)+len(other.dates))
	for _, d := range t.dates {
		dateSet[d] = struct{}{}
	}
	for _, d := range other.dates {
		dateSet[d] = struct{}{}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	rowIdx := make(map[time.Time]int, len(dates))
	values := make([][]float64, len(dates))
	for i, d := range dates {
		rowIdx[d] = i
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.NaN()
		}
		values[i] = row
	}
	for i, d := range other.dates {
		row := values[rowIdx[d]]
		for j, v := range other.values[i] {
			row[otherCol[j]] = v
		}
	}
	// Left side written last so its non-NaN cells coalesce over the right.
	for i, d := range t.dates {
		row := values[rowIdx[d]]
		for j, v := range t.values[i] {
			if !math.IsNaN(v) || math.IsNaN(row[j]) {
				row[j] = v
			}
		}
	}
	return &WideTable{dates: dates, columns: columns, values: values}
}

// AlignDates reindexes rows onto the given date axis. Dates absent from t
// become all-NaN rows; rows outside the axis are dropped. The given dates
// must be unique ascending.
func (t *WideTable) AlignDates(dates []time.Time) *WideTable {
	rowIdx := make(map[time.Time]int, len(t.dates))
	for i, d := range t.dates {
		rowIdx[d] = i
	}
	outDates := make([]time.Time, len(dates))
	copy(outDates, dates)
	values := make([][]float64, len(dates))
	for i, d := range dates {
		row := make([]float64, len(t.columns))
		if src, ok := rowIdx[d]; ok {
			copy(row, t.values[src])
		} else {
			for j := range row {
				row[j] = math.NaN()
			}
		}
		values[i] = row
	}
	columns := make([]string, len(t.columns))
	copy(columns, t.columns)
	return &WideTable{dates: outDates, columns: columns, values: values}
}

// Date normalizes a calendar date to UTC midnight so time.Time values compare
// as map keys.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string to a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
