package generate

import (
	"fmt"
	"math/rand"
)

// Context carries the per-path state that must survive across every
// record of one batch: positional counters for ordered picks, used-sets
// for non-repeating picks, and sequence counters. Keys are namespaced by
// the originating policy ("choiceOrder:", "choiceUnique:", "querySeq:",
// "queryUnique:", "seq:") so two policies targeting the same literal
// field path never share state.
type Context struct {
	orderIndex map[string]int
	uniqueUsed map[string]map[string]struct{}
	seqCounter map[string]int
}

// NewContext returns a fresh batch context.
func NewContext() *Context {
	return &Context{
		orderIndex: make(map[string]int),
		uniqueUsed: make(map[string]map[string]struct{}),
		seqCounter: make(map[string]int),
	}
}

// nextOrdered returns the next position for key modulo n and advances
// the counter. The stored counter grows monotonically; the modulus is
// taken at read time.
func (c *Context) nextOrdered(key string, n int) int {
	i := c.orderIndex[key]
	c.orderIndex[key] = i + 1
	return i % n
}

// nextSeq returns the next 1-based sequence number for key.
func (c *Context) nextSeq(key string) int {
	c.seqCounter[key]++
	return c.seqCounter[key]
}

// takeUnique picks a uniformly random option not yet used for key in the
// current cycle. When every option has been used the set is cleared and
// a new cycle begins.
func (c *Context) takeUnique(key string, options []string, rng *rand.Rand) string {
	used := c.uniqueUsed[key]
	if used == nil {
		used = make(map[string]struct{}, len(options))
		c.uniqueUsed[key] = used
	}
	if len(used) >= len(options) {
		for k := range used {
			delete(used, k)
		}
	}
	unused := make([]string, 0, len(options)-len(used))
	for _, opt := range options {
		if _, taken := used[opt]; !taken {
			unused = append(unused, opt)
		}
	}
	pick := unused[rng.Intn(len(unused))]
	used[pick] = struct{}{}
	return pick
}

// markUsed records an arbitrary value as consumed for key, returning
// true if it was free. distinct is the size of the full pool; reaching
// it clears the set so the next cycle starts fresh.
func (c *Context) markUsed(key string, value any, distinct int) bool {
	used := c.uniqueUsed[key]
	if used == nil {
		used = make(map[string]struct{}, distinct)
		c.uniqueUsed[key] = used
	}
	if len(used) >= distinct {
		for k := range used {
			delete(used, k)
		}
	}
	s := fmt.Sprint(value)
	if _, taken := used[s]; taken {
		return false
	}
	used[s] = struct{}{}
	return true
}

// isUsed reports whether value has been consumed for key in the current
// cycle.
func (c *Context) isUsed(key string, value any) bool {
	used := c.uniqueUsed[key]
	if used == nil {
		return false
	}
	_, taken := used[fmt.Sprint(value)]
	return taken
}

// usedCount returns how many values are consumed for key.
func (c *Context) usedCount(key string) int {
	return len(c.uniqueUsed[key])
}

// resetUsed clears the used-set for key.
func (c *Context) resetUsed(key string) {
	delete(c.uniqueUsed, key)
}
