package operators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantdl/internal/table"
)

func makeTable(t *testing.T, columns []string, values [][]float64) *table.WideTable {
	t.Helper()
	dates := make([]time.Time, len(values))
	for i := range values {
		dates[i] = table.Date(2024, 1, 2+i)
	}
	wt, err := table.New(dates, columns, values)
	require.NoError(t, err)
	return wt
}

func apply(t *testing.T, funcs map[string]Func, name string, args ...Value) Value {
	t.Helper()
	fn, ok := funcs[name]
	require.True(t, ok, "operator %s not registered", name)
	got, err := fn.Apply(args)
	require.NoError(t, err)
	return got
}

func column(t *testing.T, wt *table.WideTable, j int) []float64 {
	t.Helper()
	out := make([]float64, wt.NumRows())
	for i := range out {
		out[i] = wt.Cell(i, j)
	}
	return out
}

func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func TestTsMean(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{1}, {2}, {3}, {4}})
	got := apply(t, Catalogue(), "ts_mean", TableValue(wt), ScalarValue(2))
	assertSeries(t, []float64{math.NaN(), 1.5, 2.5, 3.5}, column(t, got.Table, 0))
}

func TestTsSumAndStd(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{1}, {2}, {4}})
	cat := Catalogue()

	sum := apply(t, cat, "ts_sum", TableValue(wt), ScalarValue(2))
	assertSeries(t, []float64{math.NaN(), 3, 6}, column(t, sum.Table, 0))

	sd := apply(t, cat, "ts_std", TableValue(wt), ScalarValue(3))
	want := 1.5275252316519468 // sample stddev of {1,2,4}
	assertSeries(t, []float64{math.NaN(), math.NaN(), want}, column(t, sd.Table, 0))
}

func TestTsDelayAndDelta(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{10}, {12}, {15}})
	cat := Catalogue()

	delayed := apply(t, cat, "ts_delay", TableValue(wt), ScalarValue(1))
	assertSeries(t, []float64{math.NaN(), 10, 12}, column(t, delayed.Table, 0))

	delta := apply(t, cat, "ts_delta", TableValue(wt), ScalarValue(1))
	assertSeries(t, []float64{math.NaN(), 2, 3}, column(t, delta.Table, 0))
}

func TestTsBackfill(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{5}, {math.NaN()}, {math.NaN()}, {8}})
	got := apply(t, Catalogue(), "ts_backfill", TableValue(wt), ScalarValue(1))
	assertSeries(t, []float64{5, 5, math.NaN(), 8}, column(t, got.Table, 0))
}

func TestTsRank(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{3}, {1}, {2}})
	got := apply(t, Catalogue(), "ts_rank", TableValue(wt), ScalarValue(3))
	// Window {3,1,2}: 2 is greater than one of three observations.
	assertSeries(t, []float64{math.NaN(), math.NaN(), 2.0 / 3.0}, column(t, got.Table, 0))
}

func TestTsArgMax(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{5}, {9}, {7}})
	got := apply(t, Catalogue(), "ts_arg_max", TableValue(wt), ScalarValue(3))
	// Window max 9 sits one row back from the current row.
	assertSeries(t, []float64{math.NaN(), math.NaN(), 1}, column(t, got.Table, 0))
}

func TestTsCountNaNs(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{1}, {math.NaN()}, {math.NaN()}})
	got := apply(t, Catalogue(), "ts_count_nans", TableValue(wt), ScalarValue(2))
	assertSeries(t, []float64{math.NaN(), 1, 2}, column(t, got.Table, 0))
}

func TestRank(t *testing.T) {
	wt := makeTable(t, []string{"A", "B", "C", "D"}, [][]float64{{30, 10, math.NaN(), 20}})
	got := apply(t, Catalogue(), "rank", TableValue(wt))
	row := got.Table.Row(0)
	assert.Equal(t, 3.0, row[0])
	assert.Equal(t, 1.0, row[1])
	assert.True(t, math.IsNaN(row[2]))
	assert.Equal(t, 2.0, row[3])
}

func TestQuantile(t *testing.T) {
	wt := makeTable(t, []string{"A", "B", "C", "D"}, [][]float64{{4, 1, 2, 3}})
	got := apply(t, Catalogue(), "quantile", TableValue(wt))
	assertSeries(t, []float64{1, 0.25, 0.5, 0.75}, got.Table.Row(0))
}

func TestZScoreAndDemean(t *testing.T) {
	wt := makeTable(t, []string{"A", "B", "C"}, [][]float64{{1, 2, 3}})
	cat := Catalogue()

	z := apply(t, cat, "zscore", TableValue(wt))
	assertSeries(t, []float64{-1, 0, 1}, z.Table.Row(0))

	dm := apply(t, cat, "demean", TableValue(wt))
	assertSeries(t, []float64{-1, 0, 1}, dm.Table.Row(0))
}

func TestScale(t *testing.T) {
	wt := makeTable(t, []string{"A", "B", "C"}, [][]float64{{2, -2, 4}})
	cat := Catalogue()

	got := apply(t, cat, "scale", TableValue(wt))
	assertSeries(t, []float64{0.25, -0.25, 0.5}, got.Table.Row(0))

	booked := apply(t, cat, "scale", TableValue(wt), ScalarValue(2))
	assertSeries(t, []float64{0.5, -0.5, 1}, booked.Table.Row(0))
}

func TestWinsorize(t *testing.T) {
	wt := makeTable(t, []string{"A", "B", "C", "D", "E"}, [][]float64{{1, 1, 1, 1, 100}})
	got := apply(t, Catalogue(), "winsorize", TableValue(wt), ScalarValue(1))
	row := got.Table.Row(0)
	mean, sd := 20.8, 44.27414594 // of {1,1,1,1,100}
	assert.Equal(t, 1.0, row[0]) // within one sd of the mean, untouched
	assert.InDelta(t, mean+sd, row[4], 1e-6)
}

func TestBuiltinsBroadcast(t *testing.T) {
	wt := makeTable(t, []string{"A", "B"}, [][]float64{{-4, 9}})
	builtins := Builtins()

	abs := apply(t, builtins, "abs", TableValue(wt))
	assertSeries(t, []float64{4, 9}, abs.Table.Row(0))

	sq := apply(t, builtins, "sqrt", TableValue(abs.Table))
	assertSeries(t, []float64{2, 3}, sq.Table.Row(0))

	capped := apply(t, builtins, "min", TableValue(wt), ScalarValue(0))
	assertSeries(t, []float64{-4, 0}, capped.Table.Row(0))

	floored := apply(t, builtins, "max", ScalarValue(0), TableValue(wt))
	assertSeries(t, []float64{0, 9}, floored.Table.Row(0))

	scalar := apply(t, builtins, "power", ScalarValue(2), ScalarValue(10))
	assert.False(t, scalar.IsTable())
	assert.Equal(t, 1024.0, scalar.Scalar)
}

func TestSign(t *testing.T) {
	wt := makeTable(t, []string{"A", "B", "C", "D"}, [][]float64{{-2, 0, 5, math.NaN()}})
	got := apply(t, Builtins(), "sign", TableValue(wt))
	row := got.Table.Row(0)
	assert.Equal(t, -1.0, row[0])
	assert.Equal(t, 0.0, row[1])
	assert.Equal(t, 1.0, row[2])
	assert.True(t, math.IsNaN(row[3]))
}

func TestRollingRejectsBadWindow(t *testing.T) {
	wt := makeTable(t, []string{"A"}, [][]float64{{1}})
	fn := Catalogue()["ts_mean"]

	_, err := fn.Apply([]Value{TableValue(wt), ScalarValue(0)})
	require.Error(t, err)

	_, err = fn.Apply([]Value{ScalarValue(1), ScalarValue(2)})
	require.Error(t, err)
}

func TestCrossSectionRejectsScalar(t *testing.T) {
	fn := Catalogue()["rank"]
	_, err := fn.Apply([]Value{ScalarValue(1)})
	require.Error(t, err)
}
