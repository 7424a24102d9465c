package generate

import (
	"math/rand"
	"testing"
)

func TestNextOrderedWrapsAround(t *testing.T) {
	cx := NewContext()

	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i, w := range want {
		if got := cx.nextOrdered("k", 3); got != w {
			t.Errorf("pick %d = %d, want %d", i, got, w)
		}
	}
}

func TestNextOrderedKeysAreIndependent(t *testing.T) {
	cx := NewContext()

	cx.nextOrdered("a", 3)
	cx.nextOrdered("a", 3)
	if got := cx.nextOrdered("b", 3); got != 0 {
		t.Errorf("fresh key started at %d, want 0", got)
	}
}

func TestNextSeqIsOneBased(t *testing.T) {
	cx := NewContext()

	for i := 1; i <= 5; i++ {
		if got := cx.nextSeq("seq:Order.ID"); got != i {
			t.Errorf("sequence value = %d, want %d", got, i)
		}
	}
	if got := cx.nextSeq("seq:Other"); got != 1 {
		t.Errorf("independent sequence started at %d, want 1", got)
	}
}

func TestTakeUniqueCoversAllOptionsPerCycle(t *testing.T) {
	cx := NewContext()
	rng := rand.New(rand.NewSource(17))
	options := []string{"A", "B", "C", "D"}

	for cycle := 0; cycle < 3; cycle++ {
		seen := map[string]bool{}
		for i := 0; i < len(options); i++ {
			v := cx.takeUnique("k", options, rng)
			if seen[v] {
				t.Fatalf("cycle %d repeated %q", cycle, v)
			}
			seen[v] = true
		}
	}
}

func TestMarkUsedTracksCyclesByDistinctCount(t *testing.T) {
	cx := NewContext()

	if !cx.markUsed("k", "x", 2) {
		t.Error("first mark should succeed")
	}
	if cx.markUsed("k", "x", 2) {
		t.Error("second mark of the same value should report taken")
	}
	if !cx.markUsed("k", "y", 2) {
		t.Error("marking a second distinct value should succeed")
	}

	// Pool exhausted; the next mark starts a new cycle.
	if !cx.markUsed("k", "x", 2) {
		t.Error("mark after exhaustion should start a fresh cycle")
	}
	if cx.usedCount("k") != 1 {
		t.Errorf("usedCount = %d after reset, want 1", cx.usedCount("k"))
	}
}

func TestResetUsed(t *testing.T) {
	cx := NewContext()
	cx.markUsed("k", "x", 10)
	cx.resetUsed("k")

	if cx.isUsed("k", "x") {
		t.Error("value still marked used after reset")
	}
	if cx.usedCount("k") != 0 {
		t.Errorf("usedCount = %d after reset, want 0", cx.usedCount("k"))
	}
}
