package generate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
)

// ErrTemplateMalformed marks any structural defect found while parsing
// or compiling a template definition. Compilation is fail-fast: a
// template that compiles never produces a structural error at
// generation time.
var ErrTemplateMalformed = errors.New("template malformed")

type staticField struct {
	path  string
	segs  []pathSeg
	value any
}

type sequenceField struct {
	path   string
	segs   []pathSeg
	prefix string
}

type arrayRoot struct {
	path      string
	segs      []pathSeg
	fixed     int
	low, high int
	ranged    bool
}

type randomField struct {
	path string
	segs []pathSeg
	ft   *FieldType
}

type queryField struct {
	path     string
	segs     []pathSeg
	spec     QuerySpec
	op       *Operation
	tmplSegs []pathSeg // parsed template_key, match mode only
}

type destPath struct {
	path string
	segs []pathSeg
}

type linkRule struct {
	source  string
	srcSegs []pathSeg
	dests   []destPath
}

type computedField struct {
	path string
	segs []pathSeg
	expr string
	prog cel.Program
}

// CompiledTemplate is a definition with every path, field-type token,
// operation and expression parsed up front. Map-backed sections are
// flattened into slices sorted by path so resolution order is stable
// regardless of JSON key order.
type CompiledTemplate struct {
	def *Definition

	statics   []staticField
	sequences []sequenceField
	arrays    []arrayRoot
	randoms   []randomField
	queries   []queryField
	links     []linkRule
	computed  []computedField

	// arrayRootSet holds every declared array-root path, consulted when
	// resolving write targets for broadcast.
	arrayRootSet map[string]struct{}
}

// Definition returns the source definition the template was compiled
// from.
func (ct *CompiledTemplate) Definition() *Definition { return ct.def }

// ParseTemplate decodes a JSON template definition. Unknown top-level
// sections are rejected so a typoed section name fails loudly instead
// of being silently ignored.
func ParseTemplate(data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateMalformed, err)
	}
	return &def, nil
}

// Compile validates a definition and parses every token in it. Any
// malformed path, field type, mode or operation fails the whole
// template before a single record is produced.
func Compile(def *Definition) (*CompiledTemplate, error) {
	ct := &CompiledTemplate{
		def:          def,
		arrayRootSet: make(map[string]struct{}, len(def.ArrayLengths)),
	}

	for path, raw := range def.ArrayLengths {
		segs, err := parsePath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: ArrayLengths %q: %v", ErrTemplateMalformed, path, err)
		}
		ar := arrayRoot{path: path, segs: segs}
		if err := parseArrayLength(raw, &ar); err != nil {
			return nil, fmt.Errorf("%w: ArrayLengths %q: %v", ErrTemplateMalformed, path, err)
		}
		ct.arrays = append(ct.arrays, ar)
		ct.arrayRootSet[path] = struct{}{}
	}
	// Shallower roots first so nested arrays expand inside already
	// materialized parents.
	sort.Slice(ct.arrays, func(i, j int) bool {
		a, b := ct.arrays[i], ct.arrays[j]
		if len(a.segs) != len(b.segs) {
			return len(a.segs) < len(b.segs)
		}
		return a.path < b.path
	})

	for path, value := range def.StaticFields {
		segs, err := parsePath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: StaticFields %q: %v", ErrTemplateMalformed, path, err)
		}
		ct.statics = append(ct.statics, staticField{path: path, segs: segs, value: value})
	}
	sort.Slice(ct.statics, func(i, j int) bool { return ct.statics[i].path < ct.statics[j].path })

	for path, prefix := range def.SequenceFields {
		segs, err := parsePath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: SequenceFields %q: %v", ErrTemplateMalformed, path, err)
		}
		ct.sequences = append(ct.sequences, sequenceField{path: path, segs: segs, prefix: prefix})
	}
	sort.Slice(ct.sequences, func(i, j int) bool { return ct.sequences[i].path < ct.sequences[j].path })

	for _, rf := range def.RandomFields {
		segs, err := parsePath(rf.FieldName)
		if err != nil {
			return nil, fmt.Errorf("%w: RandomFields %q: %v", ErrTemplateMalformed, rf.FieldName, err)
		}
		ft, err := ParseFieldType(rf.FieldType)
		if err != nil {
			return nil, fmt.Errorf("RandomFields %q: %w", rf.FieldName, err)
		}
		ct.randoms = append(ct.randoms, randomField{path: rf.FieldName, segs: segs, ft: ft})
	}

	for path, spec := range def.QueryContextFields {
		qf, err := compileQueryField(path, spec)
		if err != nil {
			return nil, err
		}
		ct.queries = append(ct.queries, *qf)
	}
	sort.Slice(ct.queries, func(i, j int) bool { return ct.queries[i].path < ct.queries[j].path })

	for source, dests := range def.LinkedFields {
		srcSegs, err := parsePath(source)
		if err != nil {
			return nil, fmt.Errorf("%w: LinkedFields source %q: %v", ErrTemplateMalformed, source, err)
		}
		if len(dests) == 0 {
			return nil, fmt.Errorf("%w: LinkedFields source %q has no destinations", ErrTemplateMalformed, source)
		}
		lr := linkRule{source: source, srcSegs: srcSegs}
		for _, d := range dests {
			dSegs, err := parsePath(d)
			if err != nil {
				return nil, fmt.Errorf("%w: LinkedFields destination %q: %v", ErrTemplateMalformed, d, err)
			}
			lr.dests = append(lr.dests, destPath{path: d, segs: dSegs})
		}
		ct.links = append(ct.links, lr)
	}
	sort.Slice(ct.links, func(i, j int) bool { return ct.links[i].source < ct.links[j].source })

	if len(def.ComputedFields) > 0 {
		env, err := cel.NewEnv(cel.Variable("record", cel.DynType))
		if err != nil {
			return nil, fmt.Errorf("creating expression environment: %w", err)
		}
		for path, expr := range def.ComputedFields {
			segs, err := parsePath(path)
			if err != nil {
				return nil, fmt.Errorf("%w: ComputedFields %q: %v", ErrTemplateMalformed, path, err)
			}
			ast, issues := env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				return nil, fmt.Errorf("%w: ComputedFields %q: %v", ErrTemplateMalformed, path, issues.Err())
			}
			prog, err := env.Program(ast, cel.CostLimit(1000000))
			if err != nil {
				return nil, fmt.Errorf("%w: ComputedFields %q: %v", ErrTemplateMalformed, path, err)
			}
			ct.computed = append(ct.computed, computedField{path: path, segs: segs, expr: expr, prog: prog})
		}
		sort.Slice(ct.computed, func(i, j int) bool { return ct.computed[i].path < ct.computed[j].path })
	}

	return ct, nil
}

func compileQueryField(path string, spec QuerySpec) (*queryField, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: QueryContextFields %q: %v", ErrTemplateMalformed, path, err)
	}
	if spec.Query == "" {
		return nil, fmt.Errorf("%w: QueryContextFields %q: missing query name", ErrTemplateMalformed, path)
	}
	if spec.Column == "" {
		return nil, fmt.Errorf("%w: QueryContextFields %q: missing column", ErrTemplateMalformed, path)
	}

	qf := &queryField{path: path, segs: segs, spec: spec}
	switch spec.Mode {
	case ModeRandom, ModeUnique, ModeSequential:
	case ModeMatch:
		if spec.TemplateKey == "" || spec.QueryKey == "" {
			return nil, fmt.Errorf("%w: QueryContextFields %q: match mode requires template_key and query_key", ErrTemplateMalformed, path)
		}
		qf.tmplSegs, err = parsePath(spec.TemplateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: QueryContextFields %q: template_key: %v", ErrTemplateMalformed, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: QueryContextFields %q: unknown mode %q", ErrTemplateMalformed, path, spec.Mode)
	}

	qf.op, err = ParseOperation(spec.Operation)
	if err != nil {
		return nil, fmt.Errorf("QueryContextFields %q: %w", path, err)
	}
	return qf, nil
}

// parseArrayLength interprets an ArrayLengths value: a JSON number for
// a fixed count, or the string "int(min,max)" for a per-record random
// count. A bare numeric string is accepted as fixed.
func parseArrayLength(raw any, ar *arrayRoot) error {
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != float64(int(v)) {
			return fmt.Errorf("length %v is not a non-negative integer", v)
		}
		ar.fixed = int(v)
		return nil
	case int:
		if v < 0 {
			return fmt.Errorf("length %d is negative", v)
		}
		ar.fixed = v
		return nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			if n < 0 {
				return fmt.Errorf("length %d is negative", n)
			}
			ar.fixed = n
			return nil
		}
		if strings.HasPrefix(s, "int(") && strings.HasSuffix(s, ")") {
			parts := strings.Split(s[4:len(s)-1], ",")
			if len(parts) != 2 {
				return fmt.Errorf("random length requires int(min,max)")
			}
			lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil || lo < 0 || hi < lo {
				return fmt.Errorf("random length bounds (%s,%s) are invalid", parts[0], parts[1])
			}
			ar.low, ar.high = lo, hi
			ar.ranged = true
			return nil
		}
		return fmt.Errorf("length %q is neither a number nor int(min,max)", v)
	default:
		return fmt.Errorf("length has unsupported type %T", raw)
	}
}
