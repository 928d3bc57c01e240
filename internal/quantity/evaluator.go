// Package quantity parses the quantity field typed by operators: a plain
// number or a small arithmetic expression such as "24+24" or "2*(6+6)".
package quantity

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/contagem-app/contagem/internal/model"
)

// Evaluation errors. All are *model.ValidationError values, so they can be
// matched with errors.Is and reported to the caller as-is.
var (
	ErrInvalidQuantity   = &model.ValidationError{Reason: "invalid quantity"}
	ErrInvalidCharacters = &model.ValidationError{Reason: "quantity contains invalid characters"}
	ErrInvalidExpression = &model.ValidationError{Reason: "invalid quantity expression"}
	ErrInvalidResult     = &model.ValidationError{Reason: "quantity expression has no finite result"}
	ErrQuantityTooLarge  = model.ErrQuantityTooLarge
)

const (
	maxInputLength = 256
	maxDepth       = 32
)

var (
	allowedChars = regexp.MustCompile(`^[0-9+\-*/().]+$`)
	plainNumber  = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)
)

// Evaluate normalizes and evaluates input, returning a non-negative quantity
// rounded to two decimal places.
func Evaluate(input string) (decimal.Decimal, error) {
	s := normalize(input)
	if s == "" {
		return decimal.Zero, ErrInvalidQuantity
	}
	if len(s) > maxInputLength {
		return decimal.Zero, ErrInvalidExpression
	}
	if !allowedChars.MatchString(s) {
		return decimal.Zero, ErrInvalidCharacters
	}

	var v decimal.Decimal
	if !strings.ContainsAny(s, "+-*/") {
		if !plainNumber.MatchString(s) {
			return decimal.Zero, ErrInvalidQuantity
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, ErrInvalidQuantity
		}
		v = d
	} else {
		p := &parser{src: s}
		d, err := p.parseExpr()
		if err != nil {
			return decimal.Zero, err
		}
		if p.pos != len(p.src) {
			return decimal.Zero, ErrInvalidExpression
		}
		v = d
	}

	v = v.Round(2)
	if v.IsNegative() {
		return decimal.Zero, ErrInvalidQuantity
	}
	if v.GreaterThan(model.MaxQuantity) {
		return decimal.Zero, ErrQuantityTooLarge
	}
	return v, nil
}

// normalize drops whitespace and treats a comma as the decimal separator.
func normalize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r == ',':
			b.WriteByte('.')
		case r == ' ', r == '\t', r == '\n', r == '\r', r == ' ':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parser is a recursive-descent parser over the grammar
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = ("+" | "-") factor | "(" expr ")" | number
type parser struct {
	src   string
	pos   int
	depth int
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) parseExpr() (decimal.Decimal, error) {
	left, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return decimal.Zero, err
		}
		if op == '+' {
			left = left.Add(right)
		} else {
			left = left.Sub(right)
		}
	}
}

func (p *parser) parseTerm() (decimal.Decimal, error) {
	left, err := p.parseFactor()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return decimal.Zero, err
		}
		if op == '*' {
			left = left.Mul(right)
			continue
		}
		if right.IsZero() {
			return decimal.Zero, ErrInvalidResult
		}
		left = left.Div(right)
	}
}

func (p *parser) parseFactor() (decimal.Decimal, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return decimal.Zero, ErrInvalidExpression
	}

	switch c := p.peek(); {
	case c == '+' || c == '-':
		p.pos++
		v, err := p.parseFactor()
		if err != nil {
			return decimal.Zero, err
		}
		if c == '-' {
			v = v.Neg()
		}
		return v, nil
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return decimal.Zero, err
		}
		if p.peek() != ')' {
			return decimal.Zero, ErrInvalidExpression
		}
		p.pos++
		return v, nil
	default:
		return p.parseNumber()
	}
}

func (p *parser) parseNumber() (decimal.Decimal, error) {
	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." || dots > 1 {
		return decimal.Zero, ErrInvalidExpression
	}
	v, err := decimal.NewFromString(lit)
	if err != nil {
		return decimal.Zero, ErrInvalidExpression
	}
	return v, nil
}
