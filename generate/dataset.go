package generate

import (
	"fmt"
	"math/rand"
)

// Query context modes.
const (
	ModeRandom     = "random"
	ModeUnique     = "unique"
	ModeSequential = "sequential"
	ModeMatch      = "match"
)

// Dataset is externally supplied tabular data the engine reads during
// query-context resolution. The engine never mutates a dataset; the
// caller fetches it once and reuses it across the whole batch.
type Dataset struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// HasColumn reports whether the dataset carries the named column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// distinctValues returns the distinct values of a column in row order.
func (d *Dataset) distinctValues(column string) []any {
	seen := make(map[string]struct{}, len(d.Rows))
	var out []any
	for _, row := range d.Rows {
		v := row[column]
		s := fmt.Sprint(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, v)
	}
	return out
}

// lookup retrieves one value from the dataset for the destination path
// key. matchValue supplies the record-side value for match mode; it is
// only consulted in that mode.
func (d *Dataset) lookup(spec *QuerySpec, key string, cx *Context, rng *rand.Rand, matchValue func() (any, bool)) (any, error) {
	if d.Len() == 0 {
		return nil, fmt.Errorf("dataset %q is empty", d.Name)
	}
	if !d.HasColumn(spec.Column) {
		return nil, fmt.Errorf("dataset %q has no column %q", d.Name, spec.Column)
	}

	switch spec.Mode {
	case ModeRandom:
		return d.Rows[rng.Intn(d.Len())][spec.Column], nil

	case ModeSequential:
		return d.Rows[cx.nextOrdered("querySeq:"+key, d.Len())][spec.Column], nil

	case ModeUnique:
		ns := "queryUnique:" + key
		distinct := d.distinctValues(spec.Column)
		if cx.usedCount(ns) >= len(distinct) {
			cx.resetUsed(ns)
		}
		var candidates []any
		for _, v := range distinct {
			if !cx.isUsed(ns, v) {
				candidates = append(candidates, v)
			}
		}
		pick := candidates[rng.Intn(len(candidates))]
		cx.markUsed(ns, pick, len(distinct))
		return pick, nil

	case ModeMatch:
		if !d.HasColumn(spec.QueryKey) {
			return nil, fmt.Errorf("dataset %q has no column %q", d.Name, spec.QueryKey)
		}
		want, ok := matchValue()
		if !ok || want == nil {
			return nil, fmt.Errorf("record has no value at %q", spec.TemplateKey)
		}
		wantS := fmt.Sprint(want)
		for _, row := range d.Rows {
			if fmt.Sprint(row[spec.QueryKey]) == wantS {
				return row[spec.Column], nil
			}
		}
		return nil, fmt.Errorf("no row in %q where %s = %v", d.Name, spec.QueryKey, want)
	}
	return nil, fmt.Errorf("unknown mode %q", spec.Mode)
}
