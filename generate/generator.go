package generate

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Options controls a generation batch. The zero value seeds from the
// wall clock; supplying both Rand and Now makes a batch byte-for-byte
// reproducible.
type Options struct {
	// Rand is the randomness source for the whole batch.
	Rand *rand.Rand

	// Now supplies the current time for datetime fields and {{dttm}}
	// sequence prefixes.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Generate produces count records from the compiled template. Per-field
// failures degrade (null or skip, collected in the report) rather than
// aborting; the returned error covers only unusable inputs.
func (ct *CompiledTemplate) Generate(count int, datasets map[string]*Dataset, opts Options) ([]Record, *Report, error) {
	if count < 0 {
		return nil, nil, fmt.Errorf("record count %d is negative", count)
	}
	opts = opts.withDefaults()

	cx := NewContext()
	report := &Report{}
	records := make([]Record, 0, count)

	for i := 0; i < count; i++ {
		rec := Record{}
		if ct.def.Base != nil {
			rec = deepCopy(ct.def.Base).(map[string]any)
		}

		ct.expandArrays(rec, opts.Rand, i, report)
		ct.applyStatics(rec, i, report)
		ct.applySequences(rec, cx, opts.Now, i, report)
		ct.applyRandoms(rec, cx, opts.Rand, opts.Now, i, report)
		ct.applyQueries(rec, cx, datasets, opts.Rand, i, report)
		ct.applyLinks(rec, i, report)
		ct.applyComputed(rec, i, report)

		records = append(records, rec)
	}
	return records, report, nil
}

func (ct *CompiledTemplate) applyStatics(rec Record, recIdx int, report *Report) {
	for _, sf := range ct.statics {
		targets, err := resolveTargets(rec, sf.path, sf.segs, ct.arrayRootSet)
		if err != nil {
			report.add(recIdx, sf.path, DegradationPathConflict, err.Error())
			continue
		}
		for _, t := range targets {
			t.assign(deepCopy(sf.value))
		}
	}
}

// applySequences writes "<prefix>_NNN" values. Fields scoped under an
// array number their elements 1..len within each record; top-level
// fields draw from a batch-wide counter per path.
func (ct *CompiledTemplate) applySequences(rec Record, cx *Context, now func() time.Time, recIdx int, report *Report) {
	for _, sf := range ct.sequences {
		prefix := strings.ReplaceAll(sf.prefix, "{{dttm}}", now().Format("0102"))

		targets, err := resolveTargets(rec, sf.path, sf.segs, ct.arrayRootSet)
		if err != nil {
			report.add(recIdx, sf.path, DegradationPathConflict, err.Error())
			continue
		}
		for _, t := range targets {
			n := t.ordinal
			if len(t.arrayIdx) == 0 {
				n = cx.nextSeq("seq:" + sf.path)
			}
			t.assign(fmt.Sprintf("%s_%03d", prefix, n))
		}
	}
}

func (ct *CompiledTemplate) applyRandoms(rec Record, cx *Context, rng *rand.Rand, now func() time.Time, recIdx int, report *Report) {
	for _, rf := range ct.randoms {
		targets, err := resolveTargets(rec, rf.path, rf.segs, ct.arrayRootSet)
		if err != nil {
			report.add(recIdx, rf.path, DegradationPathConflict, err.Error())
			continue
		}
		for _, t := range targets {
			t.assign(rf.ft.resolve(rf.path, cx, rng, now))
		}
	}
}

func (ct *CompiledTemplate) applyQueries(rec Record, cx *Context, datasets map[string]*Dataset, rng *rand.Rand, recIdx int, report *Report) {
	for _, qf := range ct.queries {
		qf := qf
		targets, err := resolveTargets(rec, qf.path, qf.segs, ct.arrayRootSet)
		if err != nil {
			report.add(recIdx, qf.path, DegradationPathConflict, err.Error())
			continue
		}

		ds := datasets[qf.spec.Query]
		if ds == nil {
			report.add(recIdx, qf.path, DegradationLookupMiss,
				fmt.Sprintf("dataset %q not provided", qf.spec.Query))
			for _, t := range targets {
				t.assign(nil)
			}
			continue
		}

		for _, t := range targets {
			t := t
			matchValue := func() (any, bool) {
				return getValue(rec, indexSegs(qf.tmplSegs, t.arrayIdx))
			}
			v, err := ds.lookup(&qf.spec, qf.path, cx, rng, matchValue)
			if err != nil {
				report.add(recIdx, qf.path, DegradationLookupMiss, err.Error())
				t.assign(nil)
				continue
			}
			if qf.op != nil {
				computed, opErr := qf.op.apply(v, rng)
				if opErr != nil {
					// Keep the raw retrieved value rather than losing it.
					report.add(recIdx, qf.path, DegradationArithmeticGuard, opErr.Error())
					t.assign(v)
					continue
				}
				v = computed
			}
			t.assign(v)
		}
	}
}

// applyLinks runs last among the value-producing stages, so a linked
// destination always ends up equal to its source no matter which
// earlier stage wrote either side.
func (ct *CompiledTemplate) applyLinks(rec Record, recIdx int, report *Report) {
	for _, lr := range ct.links {
		v, ok := getValue(rec, lr.srcSegs)
		if !ok || v == nil {
			continue
		}
		for _, d := range lr.dests {
			targets, err := resolveTargets(rec, d.path, d.segs, ct.arrayRootSet)
			if err != nil {
				report.add(recIdx, d.path, DegradationPathConflict, err.Error())
				continue
			}
			for _, t := range targets {
				t.assign(deepCopy(v))
			}
		}
	}
}

func (ct *CompiledTemplate) applyComputed(rec Record, recIdx int, report *Report) {
	for _, cf := range ct.computed {
		out, _, err := cf.prog.Eval(map[string]any{"record": rec})
		if err != nil {
			report.add(recIdx, cf.path, DegradationExpressionError, err.Error())
			continue
		}
		targets, err := resolveTargets(rec, cf.path, cf.segs, ct.arrayRootSet)
		if err != nil {
			report.add(recIdx, cf.path, DegradationPathConflict, err.Error())
			continue
		}
		for _, t := range targets {
			t.assign(out.Value())
		}
	}
}
