package generate

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// Operation is one parsed arithmetic post-operation from the query
// context DSL: an operator applied against a fixed literal ("*5") or a
// random integer drawn per application from an inclusive range
// ("*(3,7)"). "^" and "**" both mean exponentiation.
type Operation struct {
	op        byte
	literal   float64
	low, high int
	ranged    bool

	raw string
}

func (o *Operation) String() string { return o.raw }

// ParseOperation parses an operation token. An empty token returns
// (nil, nil): no post-operation.
func ParseOperation(token string) (*Operation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	op := &Operation{raw: token}
	rest := ""
	switch {
	case strings.HasPrefix(token, "**"):
		op.op = '^'
		rest = token[2:]
	case strings.IndexByte("+-*/%^", token[0]) >= 0:
		op.op = token[0]
		rest = token[1:]
	default:
		return nil, fmt.Errorf("%w: operation %q: unknown operator", ErrTemplateMalformed, token)
	}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") {
		if !strings.HasSuffix(rest, ")") {
			return nil, fmt.Errorf("%w: operation %q: unbalanced parentheses", ErrTemplateMalformed, token)
		}
		parts := strings.Split(rest[1:len(rest)-1], ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: operation %q: range requires (low,high)", ErrTemplateMalformed, token)
		}
		lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || hi < lo {
			return nil, fmt.Errorf("%w: operation %q: invalid range", ErrTemplateMalformed, token)
		}
		op.low, op.high = lo, hi
		op.ranged = true
		return op, nil
	}

	lit, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: operation %q: operand is not a number", ErrTemplateMalformed, token)
	}
	op.literal = lit
	return op, nil
}

// apply computes the operation against v. Division or modulus by zero,
// and non-numeric retrieved values, return an error so the caller can
// fall back to the raw value.
func (o *Operation) apply(v any, rng *rand.Rand) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}

	operand := o.literal
	if o.ranged {
		operand = float64(o.low + rng.Intn(o.high-o.low+1))
	}

	var out float64
	switch o.op {
	case '+':
		out = f + operand
	case '-':
		out = f - operand
	case '*':
		out = f * operand
	case '/':
		if operand == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		out = f / operand
	case '%':
		if operand == 0 {
			return nil, fmt.Errorf("modulus by zero")
		}
		out = math.Mod(f, operand)
	case '^':
		out = math.Pow(f, operand)
	}
	return out, nil
}

// toFloat coerces the scalar types a dataset cell may hold.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
