package vm

import (
	"testing"

	"alkanes/internal/kv"
)

func TestSequenceStartsAtZeroAndAdvances(t *testing.T) {
	seq := NewSequence(kv.NewAtomicStore(kv.NewMemBackend()))
	cur, err := seq.Current()
	if err != nil || cur != 0 {
		t.Fatalf("expected 0, got %d (%v)", cur, err)
	}
	next, err := seq.Next()
	if err != nil || next != 1 {
		t.Fatalf("expected 1, got %d (%v)", next, err)
	}
	next, err = seq.Next()
	if err != nil || next != 2 {
		t.Fatalf("expected 2, got %d (%v)", next, err)
	}
	cur, err = seq.Current()
	if err != nil || cur != 2 {
		t.Fatalf("expected current 2, got %d (%v)", cur, err)
	}
}
