package expr

import (
	"fmt"
	"math"

	"quantdl/internal/alpha"
	"quantdl/internal/errors"
	"quantdl/internal/operators"
)

// Bindings resolves variable names to wide-table values. Resolution failures
// must come back as UNBOUND_VARIABLE for the evaluator to report cleanly.
type Bindings interface {
	Resolve(name string) (*alpha.Alpha, error)
}

// MapBindings is the simplest Bindings: a fixed name-to-table map.
type MapBindings map[string]*alpha.Alpha

func (m MapBindings) Resolve(name string) (*alpha.Alpha, error) {
	a, ok := m[name]
	if !ok {
		return nil, errors.UnboundVariable(name)
	}
	return a, nil
}

// Funcs holds the call whitelist: bare builtins plus one namespaced
// catalogue. Any call outside these maps is rejected.
type Funcs struct {
	Builtins  map[string]operators.Func
	Namespace string
	Catalogue map[string]operators.Func
}

// DefaultFuncs returns the standard whitelist backed by the operator
// registry.
func DefaultFuncs() Funcs {
	return Funcs{
		Builtins:  operators.Builtins(),
		Namespace: operators.Namespace,
		Catalogue: operators.Catalogue(),
	}
}

// Evaluate parses and evaluates src against the bindings. The result must be
// a table; expressions that reduce to a bare number are an error because
// there is no shape to return.
func Evaluate(src string, b Bindings, funcs Funcs) (*alpha.Alpha, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	ev := &evaluator{bindings: b, funcs: funcs}
	v, err := ev.eval(node)
	if err != nil {
		return nil, err
	}
	if v.table == nil {
		return nil, errors.Parse("expression reduces to a constant, not a table")
	}
	return v.table, nil
}

// value is the evaluator's runtime value: a table or a scalar.
type value struct {
	table  *alpha.Alpha
	scalar float64
}

func tableVal(a *alpha.Alpha) value { return value{table: a} }
func scalarVal(f float64) value     { return value{scalar: f} }

type evaluator struct {
	bindings Bindings
	funcs    Funcs
}

func (ev *evaluator) eval(n Node) (value, error) {
	switch n := n.(type) {
	case *Literal:
		return scalarVal(n.Value), nil
	case *Ident:
		a, err := ev.bindings.Resolve(n.Name)
		if err != nil {
			return value{}, err
		}
		return tableVal(a), nil
	case *Unary:
		return ev.evalUnary(n)
	case *Binary:
		return ev.evalBinary(n)
	case *Ternary:
		return ev.evalTernary(n)
	case *Call:
		return ev.evalCall(n)
	default:
		return value{}, fmt.Errorf("unknown node type %T", n)
	}
}

func (ev *evaluator) evalUnary(n *Unary) (value, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return value{}, err
	}
	switch n.Op {
	case "-":
		if x.table != nil {
			return tableVal(x.table.Neg()), nil
		}
		return scalarVal(-x.scalar), nil
	case "not":
		if x.table != nil {
			return tableVal(x.table.Not()), nil
		}
		return scalarVal(1 - x.scalar), nil
	default:
		return value{}, fmt.Errorf("unknown unary operator %q", n.Op)
	}
}

// scalarOps gives each binary operator its scalar semantics; the same
// function is broadcast over table cells when one side is a number.
// Comparison results are 1/0 with NaN propagation, matching the table
// algebra.
var scalarOps = map[string]func(x, y float64) float64{
	"+": func(x, y float64) float64 { return x + y },
	"-": func(x, y float64) float64 { return x - y },
	"*": func(x, y float64) float64 { return x * y },
	"/": func(x, y float64) float64 { return x / y },
	"<":  cmpFunc(func(x, y float64) bool { return x < y }),
	">":  cmpFunc(func(x, y float64) bool { return x > y }),
	"<=": cmpFunc(func(x, y float64) bool { return x <= y }),
	">=": cmpFunc(func(x, y float64) bool { return x >= y }),
	"==": cmpFunc(func(x, y float64) bool { return x == y }),
	"!=": cmpFunc(func(x, y float64) bool { return x != y }),
	"and": func(x, y float64) float64 { return x * y },
	"or":  func(x, y float64) float64 { return x + y - x*y },
}

func cmpFunc(pred func(x, y float64) bool) func(x, y float64) float64 {
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

func (ev *evaluator) evalBinary(n *Binary) (value, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return value{}, err
	}
	y, err := ev.eval(n.Y)
	if err != nil {
		return value{}, err
	}
	f, ok := scalarOps[n.Op]
	if !ok {
		return value{}, fmt.Errorf("unknown binary operator %q", n.Op)
	}
	switch {
	case x.table != nil && y.table != nil:
		out, err := tableBinary(n.Op, x.table, y.table)
		if err != nil {
			return value{}, err
		}
		return tableVal(out), nil
	case x.table != nil:
		s := y.scalar
		return tableVal(x.table.Map(func(v float64) float64 { return f(v, s) })), nil
	case y.table != nil:
		s := x.scalar
		return tableVal(y.table.Map(func(v float64) float64 { return f(s, v) })), nil
	default:
		return scalarVal(f(x.scalar, y.scalar)), nil
	}
}

// tableBinary routes table-table operations through the algebra so alignment
// is validated before any cell is touched.
func tableBinary(op string, a, b *alpha.Alpha) (*alpha.Alpha, error) {
	switch op {
	case "+":
		return a.Add(b)
	case "-":
		return a.Sub(b)
	case "*":
		return a.Mul(b)
	case "/":
		return a.Div(b)
	case "<":
		return a.Lt(b)
	case ">":
		return a.Gt(b)
	case "<=":
		return a.Le(b)
	case ">=":
		return a.Ge(b)
	case "==":
		return a.Eq(b)
	case "!=":
		return a.Ne(b)
	case "and":
		return a.And(b)
	case "or":
		return a.Or(b)
	default:
		return nil, fmt.Errorf("unknown binary operator %q", op)
	}
}

func (ev *evaluator) evalTernary(n *Ternary) (value, error) {
	cond, err := ev.eval(n.Cond)
	if err != nil {
		return value{}, err
	}
	if cond.table == nil {
		// Constant condition: only one branch contributes.
		switch {
		case math.IsNaN(cond.scalar):
			return scalarVal(math.NaN()), nil
		case cond.scalar != 0:
			return ev.eval(n.Then)
		default:
			return ev.eval(n.Else)
		}
	}
	then, err := ev.eval(n.Then)
	if err != nil {
		return value{}, err
	}
	els, err := ev.eval(n.Else)
	if err != nil {
		return value{}, err
	}
	// Scalar branches broadcast to the condition's shape.
	onTrue := then.table
	if onTrue == nil {
		onTrue = cond.table.Fill(then.scalar)
	}
	onFalse := els.table
	if onFalse == nil {
		onFalse = cond.table.Fill(els.scalar)
	}
	out, err := alpha.Select(cond.table, onTrue, onFalse)
	if err != nil {
		return value{}, err
	}
	return tableVal(out), nil
}

func (ev *evaluator) evalCall(n *Call) (value, error) {
	fn, err := ev.lookup(n)
	if err != nil {
		return value{}, err
	}
	if len(n.Args) < fn.MinArgs || len(n.Args) > fn.MaxArgs {
		return value{}, errors.Parse(fmt.Sprintf(
			"%s takes %d to %d arguments, got %d", fn.Name, fn.MinArgs, fn.MaxArgs, len(n.Args)))
	}
	args := make([]operators.Value, len(n.Args))
	for i, argNode := range n.Args {
		v, err := ev.eval(argNode)
		if err != nil {
			return value{}, err
		}
		if v.table != nil {
			args[i] = operators.TableValue(v.table.Table())
		} else {
			args[i] = operators.ScalarValue(v.scalar)
		}
	}
	res, err := fn.Apply(args)
	if err != nil {
		return value{}, err
	}
	if res.IsTable() {
		return tableVal(alpha.New(res.Table)), nil
	}
	return scalarVal(res.Scalar), nil
}

func (ev *evaluator) lookup(n *Call) (operators.Func, error) {
	if n.Namespace == "" {
		if fn, ok := ev.funcs.Builtins[n.Name]; ok {
			return fn, nil
		}
		return operators.Func{}, errors.RejectedExpression(fmt.Sprintf("call to %q", n.Name))
	}
	if n.Namespace != ev.funcs.Namespace {
		return operators.Func{}, errors.RejectedExpression(fmt.Sprintf("namespace %q", n.Namespace))
	}
	if fn, ok := ev.funcs.Catalogue[n.Name]; ok {
		return fn, nil
	}
	return operators.Func{}, errors.RejectedExpression(fmt.Sprintf("call to %q.%s", n.Namespace, n.Name))
}
