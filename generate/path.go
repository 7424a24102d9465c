package generate

import (
	"fmt"
	"strconv"
	"strings"
)

// pathSeg is one segment of a dotted field path. A segment may carry an
// explicit array index, as in "Items[2]".
type pathSeg struct {
	name    string
	index   int
	indexed bool
}

// parsePath splits a dotted field path into segments, validating the
// optional [i] index suffix on each segment.
func parsePath(raw string) ([]pathSeg, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty field path")
	}
	parts := strings.Split(raw, ".")
	segs := make([]pathSeg, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("path %q contains an empty segment", raw)
		}
		seg := pathSeg{name: part}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") || open == 0 {
				return nil, fmt.Errorf("path %q has a malformed index in segment %q", raw, part)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("path %q has an invalid index in segment %q", raw, part)
			}
			seg.name = part[:open]
			seg.index = idx
			seg.indexed = true
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// getValue reads the value at segs. Explicit indices descend into arrays;
// a bare segment over an array does not resolve (links and match keys
// read a single location, never a broadcast set).
func getValue(root map[string]any, segs []pathSeg) (any, bool) {
	var cur any = root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		child, ok := m[seg.name]
		if !ok {
			return nil, false
		}
		if seg.indexed {
			arr, ok := child.([]any)
			if !ok || seg.index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.index]
			continue
		}
		cur = child
	}
	return cur, true
}

// target is one concrete write location produced by resolving a field
// path against a record, after broadcasting over declared array roots.
type target struct {
	assign func(v any)
	read   func() (any, bool)

	// arrayIdx maps each broadcast array-root path to the element index
	// selected for this target.
	arrayIdx map[string]int

	// ordinal is the 1-based position within the innermost fanned array,
	// or 0 when the path is not array-scoped.
	ordinal int
}

type walkState struct {
	cur      map[string]any
	arrayIdx map[string]int
	ordinal  int
}

func (s walkState) withIndex(rootPath string, i int) walkState {
	idx := make(map[string]int, len(s.arrayIdx)+1)
	for k, v := range s.arrayIdx {
		idx[k] = v
	}
	idx[rootPath] = i
	return walkState{cur: s.cur, arrayIdx: idx, ordinal: i + 1}
}

// resolveTargets translates a field path into every concrete location it
// addresses in the record, creating missing intermediate maps. Paths
// under a declared array root without an explicit index broadcast to all
// elements; an explicit index pins one element. A segment colliding with
// a non-container value, or an explicit index over anything but an
// array, is a path conflict.
func resolveTargets(root map[string]any, raw string, segs []pathSeg, arrayRoots map[string]struct{}) ([]target, error) {
	states := []walkState{{cur: root, arrayIdx: map[string]int{}}}
	prefix := ""

	for _, seg := range segs[:len(segs)-1] {
		if prefix == "" {
			prefix = seg.name
		} else {
			prefix = prefix + "." + seg.name
		}

		next := make([]walkState, 0, len(states))
		for _, st := range states {
			child, ok := st.cur[seg.name]
			if !ok {
				if _, isRoot := arrayRoots[prefix]; isRoot {
					// Declared array root missing means zero elements.
					st.cur[seg.name] = []any{}
					if seg.indexed {
						return nil, fmt.Errorf("path %q: index %d out of range (array %q has 0 elements)", raw, seg.index, prefix)
					}
					continue
				}
				if seg.indexed {
					return nil, fmt.Errorf("path %q: segment %q is not an array", raw, prefix)
				}
				m := map[string]any{}
				st.cur[seg.name] = m
				child = m
			}

			switch c := child.(type) {
			case map[string]any:
				if seg.indexed {
					return nil, fmt.Errorf("path %q: segment %q is an object, not an array", raw, prefix)
				}
				next = append(next, walkState{cur: c, arrayIdx: st.arrayIdx, ordinal: st.ordinal})
			case []any:
				if seg.indexed {
					if seg.index >= len(c) {
						return nil, fmt.Errorf("path %q: index %d out of range (array %q has %d elements)", raw, seg.index, prefix, len(c))
					}
					m, ok := c[seg.index].(map[string]any)
					if !ok {
						return nil, fmt.Errorf("path %q: element %d of %q is not an object", raw, seg.index, prefix)
					}
					ns := st.withIndex(prefix, seg.index)
					ns.cur = m
					next = append(next, ns)
					continue
				}
				for i, e := range c {
					m, ok := e.(map[string]any)
					if !ok {
						continue
					}
					ns := st.withIndex(prefix, i)
					ns.cur = m
					next = append(next, ns)
				}
			default:
				return nil, fmt.Errorf("path %q: segment %q holds a %T, not a container", raw, prefix, child)
			}
		}
		states = next
	}

	last := segs[len(segs)-1]
	targets := make([]target, 0, len(states))
	for _, st := range states {
		st := st
		if last.indexed {
			arr, ok := st.cur[last.name].([]any)
			if !ok {
				return nil, fmt.Errorf("path %q: %q is not an array", raw, last.name)
			}
			if last.index >= len(arr) {
				return nil, fmt.Errorf("path %q: index %d out of range", raw, last.index)
			}
			i := last.index
			targets = append(targets, target{
				assign:   func(v any) { arr[i] = v },
				read:     func() (any, bool) { return arr[i], true },
				arrayIdx: st.arrayIdx,
				ordinal:  i + 1,
			})
			continue
		}
		key := last.name
		cur := st.cur
		targets = append(targets, target{
			assign: func(v any) { cur[key] = v },
			read: func() (any, bool) {
				v, ok := cur[key]
				return v, ok
			},
			arrayIdx: st.arrayIdx,
			ordinal:  st.ordinal,
		})
	}
	return targets, nil
}

// indexSegs pins explicit indices onto a path's segments wherever the
// path crosses an array root that the caller has already selected an
// element of. Used by match-mode lookups so that a template key scoped
// to the same array reads from the same element as the destination.
func indexSegs(segs []pathSeg, arrayIdx map[string]int) []pathSeg {
	if len(arrayIdx) == 0 {
		return segs
	}
	out := make([]pathSeg, len(segs))
	copy(out, segs)
	prefix := ""
	for i, seg := range out {
		if prefix == "" {
			prefix = seg.name
		} else {
			prefix = prefix + "." + seg.name
		}
		if !seg.indexed {
			if idx, ok := arrayIdx[prefix]; ok {
				out[i].index = idx
				out[i].indexed = true
			}
		}
	}
	return out
}

// deepCopy clones a nested record tree. Scalars are shared; maps and
// slices are copied.
func deepCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, e := range c {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, e := range c {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
