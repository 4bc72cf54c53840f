package uid

import (
	"strings"
	"testing"
)

func TestNewProducesDistinctHexIDs(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatal("two consecutive calls produced the same id")
	}
	if len(a) != 32 {
		t.Errorf("len(a) = %d, want 32", len(a))
	}
	for _, r := range a {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("id %q contains non-hex rune %q", a, r)
		}
	}
}
