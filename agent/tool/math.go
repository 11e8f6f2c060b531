package tool

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const ToolMathEvaluate = "math.evaluate"

var (
	ErrEmptyExpression = errors.New("expression is empty")
	ErrDivisionByZero  = errors.New("division by zero")
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	op   byte
	num  float64
	pos  int
}

// Evaluate computes an arithmetic expression over + - * / % ^ with
// parentheses and unary signs. ^ is right associative and binds tighter
// than unary minus, so -2^2 is -4.
func Evaluate(expression string) (float64, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, ErrEmptyExpression
	}
	p := &exprParser{tokens: tokens}
	v, err := p.binary(1)
	if err != nil {
		return 0, err
	}
	if p.pos < len(p.tokens) {
		return 0, fmt.Errorf("unexpected token at position %d", p.tokens[p.pos].pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

func tokenize(s string) ([]token, error) {
	var out []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
				i++
			}
			n, err := strconv.ParseFloat(s[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", s[start:i])
			}
			out = append(out, token{kind: tokNumber, num: n, pos: start})
		case strings.IndexByte("+-*/%^", c) >= 0:
			out = append(out, token{kind: tokOp, op: c, pos: i})
			i++
		case c == '(':
			out = append(out, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			out = append(out, token{kind: tokRParen, pos: i})
			i++
		default:
			return nil, fmt.Errorf("invalid character %q at position %d", c, i)
		}
	}
	return out, nil
}

type exprParser struct {
	tokens []token
	pos    int
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/', '%':
		return 2
	}
	return 0
}

func (p *exprParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *exprParser) binary(minPrec int) (float64, error) {
	lhs, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || tok.op == '^' || precedence(tok.op) < minPrec {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.binary(precedence(tok.op) + 1)
		if err != nil {
			return 0, err
		}
		if lhs, err = apply(tok.op, lhs, rhs); err != nil {
			return 0, err
		}
	}
}

func (p *exprParser) unary() (float64, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokOp && (tok.op == '-' || tok.op == '+') {
		p.pos++
		v, err := p.unary()
		if tok.op == '-' {
			v = -v
		}
		return v, err
	}
	return p.power()
}

func (p *exprParser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	tok, ok := p.peek()
	if !ok || tok.kind != tokOp || tok.op != '^' {
		return base, nil
	}
	p.pos++
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *exprParser) primary() (float64, error) {
	tok, ok := p.peek()
	if !ok {
		return 0, errors.New("unexpected end of expression")
	}
	switch tok.kind {
	case tokNumber:
		p.pos++
		return tok.num, nil
	case tokLParen:
		p.pos++
		v, err := p.binary(1)
		if err != nil {
			return 0, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected token at position %d", tok.pos)
	}
}

func apply(op byte, a, b float64) (float64, error) {
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	case '%':
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Mod(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
