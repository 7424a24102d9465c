package generate

import "time"

// Record is one generated document: a nested tree of JSON-compatible
// values (string, float64, bool, nil, map[string]any, []any). The engine
// builds a fresh record per iteration and hands ownership to the caller.
type Record = map[string]any

// RandomField pairs a destination path with a field-type token such as
// "choice(A,B,C)" or "string(12)". Order matters: fields are resolved in
// declaration order within each record.
type RandomField struct {
	FieldName string `json:"FieldName"`
	FieldType string `json:"FieldType"`
}

// QuerySpec describes one query-context lookup against a named dataset.
type QuerySpec struct {
	Query       string `json:"query"`
	Column      string `json:"column"`
	Mode        string `json:"mode"`
	TemplateKey string `json:"template_key,omitempty"`
	QueryKey    string `json:"query_key,omitempty"`
	Operation   string `json:"operation,omitempty"`
}

// Definition holds the declarative sections of a generation template.
// All sections are optional; an empty definition generates empty records.
type Definition struct {
	// Base is an optional document each record starts from (deep copied
	// per record). Absent, records start empty.
	Base map[string]any `json:"Base,omitempty"`

	// StaticFields maps field paths to literal values applied to every
	// record.
	StaticFields map[string]any `json:"StaticFields,omitempty"`

	// SequenceFields maps field paths to prefixes; each record receives
	// "<prefix>_<NNN>" with a batch-wide counter per path. The token
	// {{dttm}} in a prefix expands to the current date as MMDD.
	SequenceFields map[string]string `json:"SequenceFields,omitempty"`

	// ArrayLengths maps array-root paths to element counts. A value is
	// either a number or the string "int(min,max)" for a per-record
	// random length.
	ArrayLengths map[string]any `json:"ArrayLengths,omitempty"`

	// RandomFields lists field-type resolutions, applied in order.
	RandomFields []RandomField `json:"RandomFields,omitempty"`

	// LinkedFields maps a source path to destination paths that receive
	// the source's resolved value after all other stages.
	LinkedFields map[string][]string `json:"LinkedFields,omitempty"`

	// QueryContextFields maps destination paths to dataset lookups.
	QueryContextFields map[string]QuerySpec `json:"QueryContextFields,omitempty"`

	// ComputedFields maps destination paths to CEL expressions over the
	// variable "record" (the record as built so far); applied last.
	ComputedFields map[string]string `json:"ComputedFields,omitempty"`
}

// Template is a stored generation template.
type Template struct {
	ID         string
	Name       string
	Definition Definition
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DegradationKind classifies a per-field generation failure.
type DegradationKind string

const (
	// DegradationPathConflict: a field path collided with an incompatible
	// value already present in the record; the field was skipped.
	DegradationPathConflict DegradationKind = "path_conflict"

	// DegradationLookupMiss: a match-mode lookup found no row (or the
	// dataset/column is unknown); null was substituted.
	DegradationLookupMiss DegradationKind = "lookup_miss"

	// DegradationArithmeticGuard: an operation would divide or take a
	// modulus by zero, or the retrieved value was not numeric; the raw
	// retrieved value was kept.
	DegradationArithmeticGuard DegradationKind = "arithmetic_guard"

	// DegradationExpressionError: a computed-field expression failed to
	// evaluate; the field was skipped.
	DegradationExpressionError DegradationKind = "expression_error"
)

// Degradation records one per-field failure that was downgraded to a
// null/skip instead of aborting the batch.
type Degradation struct {
	Record int             `json:"record"`
	Field  string          `json:"field"`
	Kind   DegradationKind `json:"kind"`
	Detail string          `json:"detail,omitempty"`
}

// Report collects every degradation encountered during one batch.
// Producing N records never fails partway; callers inspect the report
// for diagnostics instead.
type Report struct {
	Entries []Degradation `json:"entries,omitempty"`
}

func (r *Report) add(record int, field string, kind DegradationKind, detail string) {
	r.Entries = append(r.Entries, Degradation{Record: record, Field: field, Kind: kind, Detail: detail})
}

// Len returns the total number of degradations.
func (r *Report) Len() int { return len(r.Entries) }

// Count returns the number of degradations of the given kind.
func (r *Report) Count(kind DegradationKind) int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
