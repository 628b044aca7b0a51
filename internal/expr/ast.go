package expr

// Node is one variant of the tagged expression tree. The evaluator matches
// exhaustively on these five concrete types; there is no other execution
// path.
type Node interface {
	node()
}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

// Ident is a variable reference resolved through the bindings.
type Ident struct {
	Name string
}

// Unary is negation ("-") or logical not ("not").
type Unary struct {
	Op string
	X  Node
}

// Binary covers arithmetic ("+", "-", "*", "/"), comparison ("<", ">", "<=",
// ">=", "==", "!=") and boolean ("and", "or") operators.
type Binary struct {
	Op string
	X  Node
	Y  Node
}

// Ternary is the conditional: Then if Cond else Else.
type Ternary struct {
	Cond Node
	Then Node
	Else Node
}

// Call invokes a whitelisted function. Namespace is empty for bare builtin
// names and "ops" for operator-catalogue calls.
type Call struct {
	Namespace string
	Name      string
	Args      []Node
}

func (*Literal) node() {}
func (*Ident) node()   {}
func (*Unary) node()   {}
func (*Binary) node()  {}
func (*Ternary) node() {}
func (*Call) node()    {}
