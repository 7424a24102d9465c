package generate

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldKind enumerates the field-type DSL keywords.
type FieldKind int

const (
	KindChoice FieldKind = iota
	KindChoiceUnique
	KindChoiceOrder
	KindDatetime
	KindString
	KindInt
	KindIntRange
	KindFloat
	KindBoolean
	KindUUID
	KindEmail
)

// FieldType is one parsed field-type token. Templates are parsed once at
// load time; resolution per record only switches on the kind.
type FieldType struct {
	Kind      FieldKind
	Options   []string // choice / choiceUnique / choiceOrder
	Length    int      // string(N), int(N)
	Low, High float64  // float range, int(min,max)
	Precision int      // float rounding
	When      string   // datetime: now, past, future

	raw string
}

func (ft *FieldType) String() string { return ft.raw }

var stringCharset = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

var emailDomains = []string{"example.com", "test.com", "demo.org"}

// ParseFieldType parses one token of the field-type DSL, e.g.
// "choice(A,B,C)", "string(12)", "int(4)", "int(10,99)", "datetime(now)",
// "float(1,5,3)", "boolean", "uuid", "email". Unknown keywords or bad
// arguments are a malformed-template error.
func ParseFieldType(token string) (*FieldType, error) {
	token = strings.TrimSpace(token)
	name := token
	var args []string
	if open := strings.IndexByte(token, '('); open >= 0 {
		if !strings.HasSuffix(token, ")") {
			return nil, fmt.Errorf("%w: field type %q: unbalanced parentheses", ErrTemplateMalformed, token)
		}
		name = token[:open]
		inner := token[open+1 : len(token)-1]
		if strings.TrimSpace(inner) == "" {
			return nil, fmt.Errorf("%w: field type %q: missing arguments", ErrTemplateMalformed, token)
		}
		for _, a := range strings.Split(inner, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	ft := &FieldType{raw: token}
	switch name {
	case "choice", "choiceUnique", "choiceOrder":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: %s requires at least one option", ErrTemplateMalformed, name)
		}
		ft.Options = args
		switch name {
		case "choice":
			ft.Kind = KindChoice
		case "choiceUnique":
			ft.Kind = KindChoiceUnique
		default:
			ft.Kind = KindChoiceOrder
		}

	case "datetime":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: datetime takes exactly one argument", ErrTemplateMalformed)
		}
		switch args[0] {
		case "now", "past", "future":
			ft.Kind = KindDatetime
			ft.When = args[0]
		default:
			return nil, fmt.Errorf("%w: datetime argument must be now, past or future, got %q", ErrTemplateMalformed, args[0])
		}

	case "string":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: string takes exactly one length argument", ErrTemplateMalformed)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: string length %q is not a positive integer", ErrTemplateMalformed, args[0])
		}
		ft.Kind = KindString
		ft.Length = n

	case "int":
		switch len(args) {
		case 1:
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 || n > 18 {
				return nil, fmt.Errorf("%w: int digit count %q must be between 1 and 18", ErrTemplateMalformed, args[0])
			}
			ft.Kind = KindInt
			ft.Length = n
		case 2:
			lo, err1 := strconv.Atoi(args[0])
			hi, err2 := strconv.Atoi(args[1])
			if err1 != nil || err2 != nil || hi < lo {
				return nil, fmt.Errorf("%w: int range (%s,%s) is invalid", ErrTemplateMalformed, args[0], args[1])
			}
			ft.Kind = KindIntRange
			ft.Low, ft.High = float64(lo), float64(hi)
		default:
			return nil, fmt.Errorf("%w: int takes one or two arguments", ErrTemplateMalformed)
		}

	case "float":
		ft.Kind = KindFloat
		ft.Precision = 2
		switch len(args) {
		case 0:
			ft.Low, ft.High = 0, 100
		case 2, 3:
			lo, err1 := strconv.ParseFloat(args[0], 64)
			hi, err2 := strconv.ParseFloat(args[1], 64)
			if err1 != nil || err2 != nil || hi < lo {
				return nil, fmt.Errorf("%w: float range (%s,%s) is invalid", ErrTemplateMalformed, args[0], args[1])
			}
			ft.Low, ft.High = lo, hi
			if len(args) == 3 {
				p, err := strconv.Atoi(args[2])
				if err != nil || p < 0 {
					return nil, fmt.Errorf("%w: float precision %q is invalid", ErrTemplateMalformed, args[2])
				}
				ft.Precision = p
			}
		default:
			return nil, fmt.Errorf("%w: float takes zero, two or three arguments", ErrTemplateMalformed)
		}

	case "boolean":
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: boolean takes no arguments", ErrTemplateMalformed)
		}
		ft.Kind = KindBoolean

	case "uuid":
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: uuid takes no arguments", ErrTemplateMalformed)
		}
		ft.Kind = KindUUID

	case "email":
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: email takes no arguments", ErrTemplateMalformed)
		}
		ft.Kind = KindEmail

	default:
		return nil, fmt.Errorf("%w: unknown field type %q", ErrTemplateMalformed, name)
	}
	return ft, nil
}

// resolve produces one value for the field. key is the declared field
// path; it scopes the ordered/unique state in the batch context. All
// randomness flows through rng so batches are reproducible.
func (ft *FieldType) resolve(key string, cx *Context, rng *rand.Rand, now func() time.Time) any {
	switch ft.Kind {
	case KindChoice:
		return ft.Options[rng.Intn(len(ft.Options))]

	case KindChoiceUnique:
		return cx.takeUnique("choiceUnique:"+key, ft.Options, rng)

	case KindChoiceOrder:
		return ft.Options[cx.nextOrdered("choiceOrder:"+key, len(ft.Options))]

	case KindDatetime:
		t := now()
		switch ft.When {
		case "past":
			t = t.AddDate(0, 0, -(1 + rng.Intn(365)))
		case "future":
			t = t.AddDate(0, 0, 1+rng.Intn(365))
		}
		return t.Format(time.RFC3339)

	case KindString:
		b := make([]byte, ft.Length)
		for i := range b {
			b[i] = stringCharset[rng.Intn(len(stringCharset))]
		}
		return string(b)

	case KindInt:
		if ft.Length == 1 {
			return int64(rng.Intn(10))
		}
		// No leading zero for multi-digit values.
		v := int64(1 + rng.Intn(9))
		for i := 1; i < ft.Length; i++ {
			v = v*10 + int64(rng.Intn(10))
		}
		return v

	case KindIntRange:
		lo, hi := int64(ft.Low), int64(ft.High)
		return lo + rng.Int63n(hi-lo+1)

	case KindFloat:
		v := ft.Low + rng.Float64()*(ft.High-ft.Low)
		p := math.Pow(10, float64(ft.Precision))
		return math.Round(v*p) / p

	case KindBoolean:
		return rng.Intn(2) == 0

	case KindUUID:
		u, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			u = uuid.New()
		}
		return u.String()

	case KindEmail:
		b := make([]byte, 8)
		for i := range b {
			b[i] = byte('a' + rng.Intn(26))
		}
		return string(b) + "@" + emailDomains[rng.Intn(len(emailDomains))]
	}
	return nil
}
