package rank

import (
	"sort"
	"testing"
)

func TestBetween_Ordering(t *testing.T) {
	cases := []struct{ a, b string }{
		{"a", "z"},
		{"a", "b"},
		{"0", "1"},
		{"a", "a1"},
		{"abc", "abd"},
		{"i", "r"},
	}
	for _, c := range cases {
		m := Between(c.a, c.b)
		if !(c.a < m && m < c.b) {
			t.Errorf("Between(%q, %q) = %q, not strictly between", c.a, c.b, m)
		}
	}
}

func TestBetween_RepeatedInsertions(t *testing.T) {
	// 50 sequential midpoint insertions between a shrinking pair must
	// stay unique and strictly ordered.
	lo, hi := "a", "z"
	keys := []string{lo}
	for i := 0; i < 50; i++ {
		m := Between(lo, hi)
		if !(lo < m && m < hi) {
			t.Fatalf("iteration %d: Between(%q, %q) = %q out of range", i, lo, hi, m)
		}
		keys = append(keys, m)
		lo = m
	}
	keys = append(keys, hi)

	if len(keys) != 52 {
		t.Fatalf("expected 52 keys, got %d", len(keys))
	}
	if !sort.StringsAreSorted(keys) {
		t.Error("keys are not ascending")
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			t.Errorf("duplicate key %q", k)
		}
		seen[k] = struct{}{}
	}
}

func TestBefore(t *testing.T) {
	k := Initial()
	for i := 0; i < 40; i++ {
		prev := Before(k)
		if prev >= k {
			t.Fatalf("iteration %d: Before(%q) = %q not smaller", i, k, prev)
		}
		k = prev
	}
}

func TestAfter(t *testing.T) {
	k := Initial()
	for i := 0; i < 40; i++ {
		next := After(k)
		if next <= k {
			t.Fatalf("iteration %d: After(%q) = %q not greater", i, k, next)
		}
		k = next
	}
}

func TestInitial_HasRoomBothWays(t *testing.T) {
	k := Initial()
	if Before(k) >= k {
		t.Errorf("Before(initial) = %q should be smaller", Before(k))
	}
	if After(k) <= k {
		t.Errorf("After(initial) = %q should be greater", After(k))
	}
}

func TestSequence_BothBounds(t *testing.T) {
	keys := Sequence(10, "a", "b")
	if len(keys) != 10 {
		t.Fatalf("expected 10 keys, got %d", len(keys))
	}
	prev := "a"
	for i, k := range keys {
		if !(prev < k && k < "b") {
			t.Errorf("key %d = %q not between %q and %q", i, k, prev, "b")
		}
		prev = k
	}
}

func TestSequence_NoBounds(t *testing.T) {
	keys := Sequence(5, "", "")
	if keys[0] != Initial() {
		t.Errorf("first key = %q, want initial %q", keys[0], Initial())
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("keys not ascending: %v", keys)
	}
}

func TestSequence_UpperBoundOnly(t *testing.T) {
	keys := Sequence(5, "", "m")
	if !sort.StringsAreSorted(keys) {
		t.Errorf("keys not ascending: %v", keys)
	}
	for _, k := range keys {
		if k >= "m" {
			t.Errorf("key %q not below upper bound", k)
		}
	}
}

func TestBetween_AdjacentFallback(t *testing.T) {
	// No base-36 room between "a" and "a0"-style neighbors; the result
	// must still land strictly between.
	a, b := "a", "a0000001"
	m := Between(a, b)
	if !(a < m && m < b) {
		t.Errorf("Between(%q, %q) = %q out of range", a, b, m)
	}
}
