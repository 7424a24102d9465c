package generate

import (
	"fmt"
	"math/rand"
)

// expandArrays materializes every declared array root in the record.
// Existing elements (from the base document) are kept; growth clones
// the last existing element as a prototype, and a missing array starts
// as empty objects. Roots are visited shallowest first so nested arrays
// expand inside parents that already exist.
func (ct *CompiledTemplate) expandArrays(rec Record, rng *rand.Rand, recIdx int, report *Report) {
	for _, ar := range ct.arrays {
		n := ar.fixed
		if ar.ranged {
			n = ar.low + rng.Intn(ar.high-ar.low+1)
		}

		targets, err := resolveTargets(rec, ar.path, ar.segs, ct.arrayRootSet)
		if err != nil {
			report.add(recIdx, ar.path, DegradationPathConflict, err.Error())
			continue
		}
		for _, t := range targets {
			existing, ok := t.read()
			var arr []any
			if ok && existing != nil {
				arr, ok = existing.([]any)
				if !ok {
					report.add(recIdx, ar.path, DegradationPathConflict,
						fmt.Sprintf("existing value is %T, not an array", existing))
					continue
				}
			}

			switch {
			case len(arr) > n:
				arr = arr[:n]
			case len(arr) < n:
				var proto any
				if len(arr) > 0 {
					proto = arr[len(arr)-1]
				}
				for len(arr) < n {
					if m, ok := proto.(map[string]any); ok {
						arr = append(arr, deepCopy(m))
					} else {
						arr = append(arr, map[string]any{})
					}
				}
			}
			if arr == nil {
				arr = []any{}
			}
			t.assign(arr)
		}
	}
}
