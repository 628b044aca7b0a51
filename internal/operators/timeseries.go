package operators

import (
	"math"

	"quantdl/internal/table"
)

// rolling applies f to each column's trailing window (inclusive of the
// current row). Rows with fewer than window observations yield NaN; NaNs
// inside a full window are up to f to interpret.
func rolling(t *table.WideTable, window int, f func(win []float64) float64) *table.WideTable {
	out := t.Clone()
	rows, cols := t.NumRows(), t.NumColumns()
	buf := make([]float64, window)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if i+1 < window {
				out.Row(i)[j] = math.NaN()
				continue
			}
			for k := 0; k < window; k++ {
				buf[k] = t.Cell(i-window+1+k, j)
			}
			out.Row(i)[j] = f(buf)
		}
	}
	return out
}

func tsMean(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		sum := 0.0
		for _, v := range win {
			sum += v
		}
		return sum / float64(len(win))
	})
}

func tsSum(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		sum := 0.0
		for _, v := range win {
			sum += v
		}
		return sum
	})
}

// tsStd is the sample standard deviation over the window.
func tsStd(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, stddev)
}

func stddev(win []float64) float64 {
	n := float64(len(win))
	if n < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, v := range win {
		mean += v
	}
	mean /= n
	ss := 0.0
	for _, v := range win {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}

func tsMin(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		m := win[0]
		for _, v := range win[1:] {
			m = math.Min(m, v)
		}
		return m
	})
}

func tsMax(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		m := win[0]
		for _, v := range win[1:] {
			m = math.Max(m, v)
		}
		return m
	})
}

// tsRank ranks the current value within its trailing window, scaled to (0,1].
func tsRank(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		cur := win[len(win)-1]
		if math.IsNaN(cur) {
			return math.NaN()
		}
		rank, n := 1, 0
		for _, v := range win {
			if math.IsNaN(v) {
				continue
			}
			n++
			if v < cur {
				rank++
			}
		}
		if n == 0 {
			return math.NaN()
		}
		return float64(rank) / float64(n)
	})
}

func tsZScore(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		sd := stddev(win)
		if sd == 0 || math.IsNaN(sd) {
			return math.NaN()
		}
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(len(win))
		return (win[len(win)-1] - mean) / sd
	})
}

func tsCountNaNs(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		n := 0.0
		for _, v := range win {
			if math.IsNaN(v) {
				n++
			}
		}
		return n
	})
}

// tsDecayLinear is a linearly weighted trailing mean: the newest observation
// gets weight window, the oldest weight 1.
func tsDecayLinear(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		num, den := 0.0, 0.0
		for k, v := range win {
			w := float64(k + 1)
			num += v * w
			den += w
		}
		return num / den
	})
}

// tsArgMax is the age (0 = today) of the window maximum.
func tsArgMax(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		best, at := math.Inf(-1), -1
		for k, v := range win {
			if math.IsNaN(v) {
				continue
			}
			if v >= best {
				best, at = v, k
			}
		}
		if at < 0 {
			return math.NaN()
		}
		return float64(len(win) - 1 - at)
	})
}

func tsArgMin(t *table.WideTable, window int) *table.WideTable {
	return rolling(t, window, func(win []float64) float64 {
		best, at := math.Inf(1), -1
		for k, v := range win {
			if math.IsNaN(v) {
				continue
			}
			if v <= best {
				best, at = v, k
			}
		}
		if at < 0 {
			return math.NaN()
		}
		return float64(len(win) - 1 - at)
	})
}

// tsDelay shifts every column down by periods rows, padding the top with NaN.
func tsDelay(t *table.WideTable, periods int) *table.WideTable {
	out := t.Clone()
	rows, cols := t.NumRows(), t.NumColumns()
	for i := rows - 1; i >= 0; i-- {
		for j := 0; j < cols; j++ {
			if i-periods < 0 {
				out.Row(i)[j] = math.NaN()
			} else {
				out.Row(i)[j] = t.Cell(i-periods, j)
			}
		}
	}
	return out
}

// tsDelta is x - delay(x, periods).
func tsDelta(t *table.WideTable, periods int) *table.WideTable {
	delayed := tsDelay(t, periods)
	return t.Combine(delayed, func(a, b float64) float64 { return a - b })
}

// tsBackfill fills NaN cells with the most recent non-NaN value up to
// lookback rows back.
func tsBackfill(t *table.WideTable, lookback int) *table.WideTable {
	out := t.Clone()
	rows, cols := t.NumRows(), t.NumColumns()
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if !math.IsNaN(t.Cell(i, j)) {
				continue
			}
			for back := 1; back <= lookback && i-back >= 0; back++ {
				if v := t.Cell(i-back, j); !math.IsNaN(v) {
					out.Row(i)[j] = v
					break
				}
			}
		}
	}
	return out
}
