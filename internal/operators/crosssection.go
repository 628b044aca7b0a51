package operators

import (
	"fmt"
	"math"
	"sort"

	"quantdl/internal/table"
)

// mapRows applies f to every date row independently, leaving the date axis
// and column order untouched.
func mapRows(t *table.WideTable, f func(row []float64) []float64) *table.WideTable {
	out := t.Clone()
	for i := 0; i < t.NumRows(); i++ {
		res := f(t.Row(i))
		copy(out.Row(i), res)
	}
	return out
}

// rankRow assigns ordinal ranks 1..N ascending across the row, skipping NaNs.
func rankRow(row []float64) []float64 {
	out := make([]float64, len(row))
	type iv struct {
		idx int
		val float64
	}
	var obs []iv
	for j, v := range row {
		if math.IsNaN(v) {
			out[j] = math.NaN()
			continue
		}
		obs = append(obs, iv{j, v})
	}
	sort.Slice(obs, func(a, b int) bool { return obs[a].val < obs[b].val })
	for r, o := range obs {
		out[o.idx] = float64(r + 1)
	}
	return out
}

// quantileRow rescales ordinal ranks to (0, 1].
func quantileRow(row []float64) []float64 {
	ranks := rankRow(row)
	n := 0.0
	for _, v := range ranks {
		if !math.IsNaN(v) {
			n++
		}
	}
	for j, v := range ranks {
		if !math.IsNaN(v) {
			ranks[j] = v / n
		}
	}
	return ranks
}

func rowMeanStd(row []float64) (mean, sd float64, n int) {
	for _, v := range row {
		if math.IsNaN(v) {
			continue
		}
		mean += v
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN(), 0
	}
	mean /= float64(n)
	if n < 2 {
		return mean, math.NaN(), n
	}
	ss := 0.0
	for _, v := range row {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
	}
	sd = math.Sqrt(ss / float64(n-1))
	return mean, sd, n
}

// zscoreRow standardizes the row to zero mean, unit standard deviation.
func zscoreRow(row []float64) []float64 {
	mean, sd, n := rowMeanStd(row)
	out := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) || n < 2 || sd == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = (v - mean) / sd
	}
	return out
}

// demeanRow subtracts the row mean.
func demeanRow(row []float64) []float64 {
	mean, _, n := rowMeanStd(row)
	out := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) || n == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = v - mean
	}
	return out
}

// applyWinsorize clips each row at mean +/- k standard deviations (default 4).
func applyWinsorize(args []Value) (Value, error) {
	if !args[0].IsTable() {
		return Value{}, errNotTable("winsorize")
	}
	k := 4.0
	if len(args) == 2 {
		k = args[1].Scalar
	}
	out := mapRows(args[0].Table, func(row []float64) []float64 {
		mean, sd, n := rowMeanStd(row)
		res := make([]float64, len(row))
		copy(res, row)
		if n < 2 || math.IsNaN(sd) || sd == 0 {
			return res
		}
		lo, hi := mean-k*sd, mean+k*sd
		for j, v := range res {
			if math.IsNaN(v) {
				continue
			}
			res[j] = math.Min(math.Max(v, lo), hi)
		}
		return res
	})
	return TableValue(out), nil
}

// applyScale rescales each row so the sum of absolute values equals the book
// size (default 1).
func applyScale(args []Value) (Value, error) {
	if !args[0].IsTable() {
		return Value{}, errNotTable("scale")
	}
	book := 1.0
	if len(args) == 2 {
		book = args[1].Scalar
	}
	out := mapRows(args[0].Table, func(row []float64) []float64 {
		res := make([]float64, len(row))
		copy(res, row)
		gross := 0.0
		for _, v := range row {
			if !math.IsNaN(v) {
				gross += math.Abs(v)
			}
		}
		if gross == 0 {
			return res
		}
		for j, v := range res {
			if !math.IsNaN(v) {
				res[j] = v * book / gross
			}
		}
		return res
	})
	return TableValue(out), nil
}

func errNotTable(name string) error {
	return fmt.Errorf("%s: argument must be a table", name)
}
