package expr

import (
	"fmt"

	"quantdl/internal/errors"
)

// Parse turns src into an expression tree, accepting only the restricted
// grammar. Both `x if c else y` and `c ? x : y` spellings of the conditional
// are recognized.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, errors.Parse(fmt.Sprintf("unexpected %s after expression", p.peek()))
	}
	return node, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, errors.Parse(fmt.Sprintf("expected %s, found %s", what, t))
	}
	return p.next(), nil
}

// parseTernary handles the two conditional spellings at lowest precedence.
func (p *parser) parseTernary() (Node, error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokIf:
		// then-value if cond else else-value
		p.next()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokElse, "else"); err != nil {
			return nil, err
		}
		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &Ternary{Cond: cond, Then: first, Else: els}, nil
	case tokQuestion:
		// cond ? then-value : else-value
		p.next()
		then, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon, ":"); err != nil {
			return nil, err
		}
		els, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return &Ternary{Cond: first, Then: then, Else: els}, nil
	}
	return first, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "or", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "and", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

var cmpOps = map[tokenKind]string{
	tokLt: "<",
	tokGt: ">",
	tokLe: "<=",
	tokGe: ">=",
	tokEq: "==",
	tokNe: "!=",
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := cmpOps[p.peek().kind]
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, X: left, Y: right}
	}
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().kind {
		case tokPlus:
			op = "+"
		case tokMinus:
			op = "-"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, X: left, Y: right}
	}
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().kind {
		case tokStar:
			op = "*"
		case tokSlash:
			op = "/"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, X: left, Y: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind == tokMinus {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &Literal{Value: t.num}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		p.next()
		return p.parseNameOrCall(t.text)
	default:
		return nil, errors.Parse(fmt.Sprintf("expected expression, found %s", t))
	}
}

// parseNameOrCall handles variables, bare calls and one-level qualified
// calls. Attribute access that is not a single-level qualified call, and any
// deeper chaining, falls outside the grammar.
func (p *parser) parseNameOrCall(name string) (Node, error) {
	switch p.peek().kind {
	case tokLParen:
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &Call{Name: name, Args: args}, nil
	case tokDot:
		p.next()
		attr, err := p.expect(tokIdent, "name after '.'")
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tokDot {
			return nil, errors.RejectedExpression("nested attribute access")
		}
		if p.peek().kind != tokLParen {
			return nil, errors.RejectedExpression("attribute access")
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &Call{Namespace: name, Name: attr.text, Args: args}, nil
	}
	return &Ident{Name: name}, nil
}

func (p *parser) parseArgs() ([]Node, error) {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	var args []Node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		switch p.peek().kind {
		case tokComma:
			p.next()
		case tokRParen:
			p.next()
			return args, nil
		default:
			return nil, errors.Parse(fmt.Sprintf("expected ',' or ')', found %s", p.peek()))
		}
	}
}
