// Package expr evaluates basic arithmetic expressions without any code
// execution. It backs the calculator built-in: the grammar covers float
// literals, + - * /, parentheses and unary minus, nothing else.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

const allowedChars = "0123456789+-*/()., "

// Eval parses and evaluates an arithmetic expression.
func Eval(input string) (float64, error) {
	for _, r := range input {
		if !strings.ContainsRune(allowedChars, r) {
			return 0, fmt.Errorf("invalid characters in expression")
		}
	}
	p := &parser{input: input}
	v, err := p.expression()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("failed to evaluate expression: unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

// expression := term (('+'|'-') term)*
func (p *parser) expression() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// term := factor (('*'|'/') factor)*
func (p *parser) term() (float64, error) {
	left, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.factor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		left /= right
	}
}

// factor := '-' factor | '(' expression ')' | number
func (p *parser) factor() (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	switch c {
	case '-':
		p.pos++
		v, err := p.factor()
		if err != nil {
			return 0, err
		}
		return -v, nil
	case '(':
		p.pos++
		v, err := p.expression()
		if err != nil {
			return 0, err
		}
		c, ok := p.peek()
		if !ok || c != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return p.number()
	}
}

func (p *parser) number() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", p.input[start:p.pos])
	}
	return v, nil
}
