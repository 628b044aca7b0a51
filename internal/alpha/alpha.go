// Package alpha wraps wide tables in an immutable value type with the
// arithmetic, comparison and logical algebra used by alpha research. Every
// operation returns a new Alpha; operands are never mutated. Binary
// operations between two Alphas validate alignment first: identical column
// sets in identical order, identical row counts.
package alpha

import (
	"math"

	"quantdl/internal/errors"
	"quantdl/internal/table"
)

// Alpha wraps exactly one wide table.
type Alpha struct {
	t *table.WideTable
}

// New wraps a wide table. The table must not be mutated afterwards.
func New(t *table.WideTable) *Alpha {
	return &Alpha{t: t}
}

// Table returns the underlying wide table. Read-only.
func (a *Alpha) Table() *table.WideTable { return a.t }

// align validates the two operands for elementwise combination.
func (a *Alpha) align(b *Alpha) error {
	ac, bc := a.t.Columns(), b.t.Columns()
	if len(ac) != len(bc) {
		return errors.ColumnMismatch(ac, bc)
	}
	for i := range ac {
		if ac[i] != bc[i] {
			return errors.ColumnMismatch(ac, bc)
		}
	}
	if a.t.NumRows() != b.t.NumRows() {
		return errors.DateMismatch(a.t.NumRows(), b.t.NumRows())
	}
	return nil
}

func (a *Alpha) combine(b *Alpha, f func(x, y float64) float64) (*Alpha, error) {
	if err := a.align(b); err != nil {
		return nil, err
	}
	return New(a.t.Combine(b.t, f)), nil
}

// Map applies f to every cell, including NaN cells.
func (a *Alpha) Map(f func(float64) float64) *Alpha {
	return New(a.t.Map(f))
}

// Fill returns an Alpha with a's shape where every cell holds x.
func (a *Alpha) Fill(x float64) *Alpha {
	return a.Map(func(float64) float64 { return x })
}

// Arithmetic.

func (a *Alpha) Add(b *Alpha) (*Alpha, error) {
	return a.combine(b, func(x, y float64) float64 { return x + y })
}

func (a *Alpha) Sub(b *Alpha) (*Alpha, error) {
	return a.combine(b, func(x, y float64) float64 { return x - y })
}

func (a *Alpha) Mul(b *Alpha) (*Alpha, error) {
	return a.combine(b, func(x, y float64) float64 { return x * y })
}

func (a *Alpha) Div(b *Alpha) (*Alpha, error) {
	return a.combine(b, func(x, y float64) float64 { return x / y })
}

// Neg negates every cell.
func (a *Alpha) Neg() *Alpha {
	return a.Map(func(x float64) float64 { return -x })
}

// Abs takes the absolute value of every cell.
func (a *Alpha) Abs() *Alpha {
	return a.Map(math.Abs)
}

// Comparisons produce 1.0/0.0-valued tables; NaN operands propagate NaN.

func cmp(pred func(x, y float64) bool) func(x, y float64) float64 {
	return func(x, y float64) float64 {
		if math.IsNaN(x) || math.IsNaN(y) {
			return math.NaN()
		}
		if pred(x, y) {
			return 1
		}
		return 0
	}
}

func (a *Alpha) Gt(b *Alpha) (*Alpha, error) {
	return a.combine(b, cmp(func(x, y float64) bool { return x > y }))
}

func (a *Alpha) Lt(b *Alpha) (*Alpha, error) {
	return a.combine(b, cmp(func(x, y float64) bool { return x < y }))
}

func (a *Alpha) Ge(b *Alpha) (*Alpha, error) {
	return a.combine(b, cmp(func(x, y float64) bool { return x >= y }))
}

func (a *Alpha) Le(b *Alpha) (*Alpha, error) {
	return a.combine(b, cmp(func(x, y float64) bool { return x <= y }))
}

func (a *Alpha) Eq(b *Alpha) (*Alpha, error) {
	return a.combine(b, cmp(func(x, y float64) bool { return x == y }))
}

func (a *Alpha) Ne(b *Alpha) (*Alpha, error) {
	return a.combine(b, cmp(func(x, y float64) bool { return x != y }))
}

// Logical composition over 1.0/0.0-valued operands. The algebra does not
// enforce that inputs are boolean-valued; that is the caller's contract.

// And is the elementwise product.
func (a *Alpha) And(b *Alpha) (*Alpha, error) {
	return a.Mul(b)
}

// Or is the saturating combination a + b - a*b.
func (a *Alpha) Or(b *Alpha) (*Alpha, error) {
	return a.combine(b, func(x, y float64) float64 { return x + y - x*y })
}

// Not is elementwise 1 - x.
func (a *Alpha) Not() *Alpha {
	return a.Map(func(x float64) float64 { return 1 - x })
}

// Select chooses cellwise between onTrue and onFalse depending on cond
// (non-zero selects onTrue). All three must be alignment-compatible; a NaN
// condition cell yields NaN.
func Select(cond, onTrue, onFalse *Alpha) (*Alpha, error) {
	if err := cond.align(onTrue); err != nil {
		return nil, err
	}
	if err := cond.align(onFalse); err != nil {
		return nil, err
	}
	out := cond.t.Clone()
	for i := 0; i < out.NumRows(); i++ {
		row := out.Row(i)
		for j := range row {
			c := cond.t.Cell(i, j)
			switch {
			case math.IsNaN(c):
				row[j] = math.NaN()
			case c != 0:
				row[j] = onTrue.t.Cell(i, j)
			default:
				row[j] = onFalse.t.Cell(i, j)
			}
		}
	}
	return New(out), nil
}
