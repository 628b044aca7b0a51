// Package expr implements the sandboxed expression evaluator: a restricted
// grammar (literals, variables, arithmetic, comparisons, boolean composition,
// conditionals and whitelisted function calls) parsed into a tagged tree and
// interpreted by an exhaustive-match evaluator. Nothing outside the grammar
// ever executes; disallowed constructs are rejected at parse time.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"quantdl/internal/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLt
	tokGt
	tokLe
	tokGe
	tokEq
	tokNe
	tokAnd
	tokOr
	tokNot
	tokIf
	tokElse
	tokQuestion
	tokColon
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lex tokenizes src. Syntax errors come back as PARSE_ERROR; characters that
// only occur in constructs outside the grammar (quotes, brackets, braces)
// are rejected immediately with the construct named.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' || src[i] == 'e' || src[i] == 'E' ||
				((src[i] == '+' || src[i] == '-') && (src[i-1] == 'e' || src[i-1] == 'E'))) {
				i++
			}
			text := src[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, errors.Parse(fmt.Sprintf("invalid number %q at position %d", text, start))
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: num, pos: start})
		case isIdentStart(rune(c)):
			start := i
			for i < len(src) && isIdentPart(rune(src[i])) {
				i++
			}
			word := src[start:i]
			switch word {
			case "and":
				toks = append(toks, token{kind: tokAnd, text: word, pos: start})
			case "or":
				toks = append(toks, token{kind: tokOr, text: word, pos: start})
			case "not":
				toks = append(toks, token{kind: tokNot, text: word, pos: start})
			case "if":
				toks = append(toks, token{kind: tokIf, text: word, pos: start})
			case "else":
				toks = append(toks, token{kind: tokElse, text: word, pos: start})
			case "lambda", "import", "def", "class", "for", "while":
				return nil, errors.RejectedExpression(fmt.Sprintf("%s expression", word))
			default:
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
		default:
			two := ""
			if i+1 < len(src) {
				two = src[i : i+2]
			}
			switch {
			case two == "<=":
				toks = append(toks, token{kind: tokLe, text: two, pos: i})
				i += 2
			case two == ">=":
				toks = append(toks, token{kind: tokGe, text: two, pos: i})
				i += 2
			case two == "==":
				toks = append(toks, token{kind: tokEq, text: two, pos: i})
				i += 2
			case two == "!=":
				toks = append(toks, token{kind: tokNe, text: two, pos: i})
				i += 2
			case two == "&&":
				toks = append(toks, token{kind: tokAnd, text: two, pos: i})
				i += 2
			case two == "||":
				toks = append(toks, token{kind: tokOr, text: two, pos: i})
				i += 2
			case c == '<':
				toks = append(toks, token{kind: tokLt, text: "<", pos: i})
				i++
			case c == '>':
				toks = append(toks, token{kind: tokGt, text: ">", pos: i})
				i++
			case c == '=':
				// Single = is equality in this grammar; assignment does not exist.
				toks = append(toks, token{kind: tokEq, text: "=", pos: i})
				i++
			case c == '!':
				toks = append(toks, token{kind: tokNot, text: "!", pos: i})
				i++
			case c == '+':
				toks = append(toks, token{kind: tokPlus, text: "+", pos: i})
				i++
			case c == '-':
				toks = append(toks, token{kind: tokMinus, text: "-", pos: i})
				i++
			case c == '*':
				toks = append(toks, token{kind: tokStar, text: "*", pos: i})
				i++
			case c == '/':
				toks = append(toks, token{kind: tokSlash, text: "/", pos: i})
				i++
			case c == '(':
				toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
				i++
			case c == ')':
				toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
				i++
			case c == ',':
				toks = append(toks, token{kind: tokComma, text: ",", pos: i})
				i++
			case c == '.':
				toks = append(toks, token{kind: tokDot, text: ".", pos: i})
				i++
			case c == '?':
				toks = append(toks, token{kind: tokQuestion, text: "?", pos: i})
				i++
			case c == ':':
				toks = append(toks, token{kind: tokColon, text: ":", pos: i})
				i++
			case c == '\'' || c == '"':
				return nil, errors.RejectedExpression("string literal")
			case c == '[' || c == ']':
				return nil, errors.RejectedExpression("subscript")
			case c == '{' || c == '}':
				return nil, errors.RejectedExpression("container literal")
			case c == ';':
				return nil, errors.RejectedExpression("statement sequence")
			default:
				return nil, errors.Parse(fmt.Sprintf("unexpected character %q at position %d", string(c), i))
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strings.TrimSpace(t.text)
}
