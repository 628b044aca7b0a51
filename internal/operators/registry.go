// Package operators is the columnar compute engine behind the expression
// evaluator: rolling time-series primitives and cross-sectional transforms
// over wide tables. Every operator is registered with a name and an arity and
// is invoked by the evaluator as an opaque whitelisted function.
package operators

import (
	"fmt"
	"math"

	"quantdl/internal/table"
)

// Namespace is the single approved qualifier for operator calls in
// expressions, as in "ops.rank(close)".
const Namespace = "ops"

// Value is an operator argument or result: either a wide table or a scalar.
type Value struct {
	Table  *table.WideTable
	Scalar float64
}

// TableValue wraps a wide table.
func TableValue(t *table.WideTable) Value { return Value{Table: t} }

// ScalarValue wraps a plain number.
func ScalarValue(f float64) Value { return Value{Scalar: f} }

// IsTable reports whether the value carries a table.
func (v Value) IsTable() bool { return v.Table != nil }

// Func is one whitelisted operator with its declared arity range.
type Func struct {
	Name    string
	MinArgs int
	MaxArgs int
	Apply   func(args []Value) (Value, error)
}

// Builtins returns the bare-name whitelist available to every expression.
func Builtins() map[string]Func {
	return map[string]Func{
		"abs":   unary("abs", math.Abs),
		"log":   unary("log", math.Log),
		"sqrt":  unary("sqrt", math.Sqrt),
		"sign":  unary("sign", signOf),
		"min":   binaryElementwise("min", math.Min),
		"max":   binaryElementwise("max", math.Max),
		"power": binaryElementwise("power", math.Pow),
	}
}

// Catalogue returns the ops-namespace operator set.
func Catalogue() map[string]Func {
	funcs := map[string]Func{
		"ts_mean":         rollingFunc("ts_mean", tsMean),
		"ts_sum":          rollingFunc("ts_sum", tsSum),
		"ts_std":          rollingFunc("ts_std", tsStd),
		"ts_min":          rollingFunc("ts_min", tsMin),
		"ts_max":          rollingFunc("ts_max", tsMax),
		"ts_rank":         rollingFunc("ts_rank", tsRank),
		"ts_zscore":       rollingFunc("ts_zscore", tsZScore),
		"ts_count_nans":   rollingFunc("ts_count_nans", tsCountNaNs),
		"ts_decay_linear": rollingFunc("ts_decay_linear", tsDecayLinear),
		"ts_arg_max":      rollingFunc("ts_arg_max", tsArgMax),
		"ts_arg_min":      rollingFunc("ts_arg_min", tsArgMin),
		"ts_delay":        shiftFunc("ts_delay", tsDelay),
		"ts_delta":        shiftFunc("ts_delta", tsDelta),
		"ts_backfill":     shiftFunc("ts_backfill", tsBackfill),
		"rank":            crossFunc("rank", rankRow),
		"zscore":          crossFunc("zscore", zscoreRow),
		"demean":          crossFunc("demean", demeanRow),
		"quantile":        crossFunc("quantile", quantileRow),
		"winsorize": {
			Name:    "winsorize",
			MinArgs: 1,
			MaxArgs: 2,
			Apply:   applyWinsorize,
		},
		"scale": {
			Name:    "scale",
			MinArgs: 1,
			MaxArgs: 2,
			Apply:   applyScale,
		},
	}
	return funcs
}

func signOf(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// unary lifts a scalar function over tables and scalars.
func unary(name string, f func(float64) float64) Func {
	return Func{
		Name:    name,
		MinArgs: 1,
		MaxArgs: 1,
		Apply: func(args []Value) (Value, error) {
			if args[0].IsTable() {
				return TableValue(args[0].Table.Map(f)), nil
			}
			return ScalarValue(f(args[0].Scalar)), nil
		},
	}
}

// binaryElementwise lifts a two-argument scalar function, broadcasting
// scalars against tables.
func binaryElementwise(name string, f func(a, b float64) float64) Func {
	return Func{
		Name:    name,
		MinArgs: 2,
		MaxArgs: 2,
		Apply: func(args []Value) (Value, error) {
			a, b := args[0], args[1]
			switch {
			case a.IsTable() && b.IsTable():
				if err := sameShape(name, a.Table, b.Table); err != nil {
					return Value{}, err
				}
				return TableValue(a.Table.Combine(b.Table, f)), nil
			case a.IsTable():
				s := b.Scalar
				return TableValue(a.Table.Map(func(x float64) float64 { return f(x, s) })), nil
			case b.IsTable():
				s := a.Scalar
				return TableValue(b.Table.Map(func(x float64) float64 { return f(s, x) })), nil
			default:
				return ScalarValue(f(a.Scalar, b.Scalar)), nil
			}
		},
	}
}

func sameShape(name string, a, b *table.WideTable) error {
	if a.NumRows() != b.NumRows() || a.NumColumns() != b.NumColumns() {
		return fmt.Errorf("%s: operand shapes differ (%dx%d vs %dx%d)",
			name, a.NumRows(), a.NumColumns(), b.NumRows(), b.NumColumns())
	}
	return nil
}

// rollingFunc wraps an operator of the form f(table, window).
func rollingFunc(name string, f func(t *table.WideTable, window int) *table.WideTable) Func {
	return Func{
		Name:    name,
		MinArgs: 2,
		MaxArgs: 2,
		Apply: func(args []Value) (Value, error) {
			t, window, err := tableAndInt(name, args)
			if err != nil {
				return Value{}, err
			}
			return TableValue(f(t, window)), nil
		},
	}
}

// shiftFunc wraps an operator of the form f(table, periods).
func shiftFunc(name string, f func(t *table.WideTable, periods int) *table.WideTable) Func {
	return rollingFunc(name, f)
}

// crossFunc wraps a row-wise cross-sectional transform.
func crossFunc(name string, f func(row []float64) []float64) Func {
	return Func{
		Name:    name,
		MinArgs: 1,
		MaxArgs: 1,
		Apply: func(args []Value) (Value, error) {
			if !args[0].IsTable() {
				return Value{}, fmt.Errorf("%s: argument must be a table", name)
			}
			return TableValue(mapRows(args[0].Table, f)), nil
		},
	}
}

func tableAndInt(name string, args []Value) (*table.WideTable, int, error) {
	if !args[0].IsTable() {
		return nil, 0, fmt.Errorf("%s: first argument must be a table", name)
	}
	if args[1].IsTable() {
		return nil, 0, fmt.Errorf("%s: second argument must be a number", name)
	}
	n := int(args[1].Scalar)
	if n < 1 {
		return nil, 0, fmt.Errorf("%s: window must be >= 1, got %d", name, n)
	}
	return args[0].Table, n, nil
}
