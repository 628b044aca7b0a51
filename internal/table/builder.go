package table

import (
	"math"
	"sort"
	"time"
)

// Builder accumulates per-symbol observations and pivots them into a
// WideTable. Duplicate (date, symbol) observations keep the first value,
// matching the dedup rule of the fundamentals pipeline.
type Builder struct {
	cells map[time.Time]map[string]float64
}

// NewBuilder returns an empty pivot builder.
func NewBuilder() *Builder {
	return &Builder{cells: make(map[time.Time]map[string]float64)}
}

// Add records one observation for symbol at date.
func (b *Builder) Add(symbol string, date time.Time, value float64) {
	row, ok := b.cells[date]
	if !ok {
		row = make(map[string]float64)
		b.cells[date] = row
	}
	if _, dup := row[symbol]; dup {
		return
	}
	row[symbol] = value
}

// AddSeries records a whole series for one symbol.
func (b *Builder) AddSeries(symbol string, dates []time.Time, values []float64) {
	for i, d := range dates {
		b.Add(symbol, d, values[i])
	}
}

// Empty reports whether no observation has been added.
func (b *Builder) Empty() bool { return len(b.cells) == 0 }

// Build pivots the accumulated observations into a WideTable. Columns follow
// columnOrder, skipping symbols with no observations at all; rows are the
// observed dates in ascending order.
func (b *Builder) Build(columnOrder []string) *WideTable {
	present := make(map[string]bool)
	for _, row := range b.cells {
		for sym := range row {
			present[sym] = true
		}
	}
	columns := make([]string, 0, len(columnOrder))
	for _, sym := range columnOrder {
		if present[sym] {
			columns = append(columns, sym)
		}
	}

	dates := make([]time.Time, 0, len(b.cells))
	for d := range b.cells {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	values := make([][]float64, len(dates))
	for i, d := range dates {
		row := make([]float64, len(columns))
		obs := b.cells[d]
		for j, sym := range columns {
			if v, ok := obs[sym]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		values[i] = row
	}
	return &WideTable{dates: dates, columns: columns, values: values}
}
