package balance

import (
	"testing"

	"alkanes/pkg/alkanes"
)

func id(block, tx uint64) alkanes.RuneId {
	return alkanes.RuneId{Block: alkanes.U128FromUint64(block), Tx: alkanes.U128FromUint64(tx)}
}

func TestSheetAbsentKeyIsZero(t *testing.T) {
	s := New()
	if !s.Get(id(1, 0)).IsZero() {
		t.Fatalf("absent key should read as zero")
	}
}

func TestSheetIncreaseDecrease(t *testing.T) {
	s := New()
	rid := id(2, 5)
	if err := s.Increase(rid, alkanes.U128FromUint64(100)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if got := s.Get(rid).Uint64(); got != 100 {
		t.Fatalf("get = %d, want 100", got)
	}
	if err := s.Decrease(rid, alkanes.U128FromUint64(40)); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if got := s.Get(rid).Uint64(); got != 60 {
		t.Fatalf("get = %d, want 60", got)
	}
}

func TestSheetDecreaseUnderflowFails(t *testing.T) {
	s := New()
	rid := id(2, 5)
	if err := s.Decrease(rid, alkanes.U128FromUint64(1)); err == nil {
		t.Fatalf("expected underflow error")
	}
	if !s.Get(rid).IsZero() {
		t.Fatalf("failed decrease must not mutate the sheet")
	}
}

func TestSheetDebitAtomic(t *testing.T) {
	s := New()
	rid1, rid2 := id(1, 1), id(1, 2)
	_ = s.Increase(rid1, alkanes.U128FromUint64(10))
	_ = s.Increase(rid2, alkanes.U128FromUint64(5))

	other := New()
	_ = other.Increase(rid1, alkanes.U128FromUint64(3))
	_ = other.Increase(rid2, alkanes.U128FromUint64(100)) // more than s has

	if err := s.Debit(other); err == nil {
		t.Fatalf("expected debit to fail on insufficient rid2 balance")
	}
	if got := s.Get(rid1).Uint64(); got != 10 {
		t.Fatalf("debit must not partially mutate: rid1 = %d, want 10", got)
	}
}

func TestSheetPipe(t *testing.T) {
	s := New()
	rid := id(7, 7)
	_ = s.Increase(rid, alkanes.U128FromUint64(9))

	dst := New()
	_ = dst.Increase(rid, alkanes.U128FromUint64(1))

	if err := s.Pipe(dst); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	if got := dst.Get(rid).Uint64(); got != 10 {
		t.Fatalf("dst after pipe = %d, want 10", got)
	}
}

func TestMergeSumsSharedKeys(t *testing.T) {
	a, b := New(), New()
	shared := id(3, 3)
	onlyA := id(4, 4)
	onlyB := id(5, 5)
	_ = a.Increase(shared, alkanes.U128FromUint64(10))
	_ = a.Increase(onlyA, alkanes.U128FromUint64(1))
	_ = b.Increase(shared, alkanes.U128FromUint64(20))
	_ = b.Increase(onlyB, alkanes.U128FromUint64(2))

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := merged.Get(shared).Uint64(); got != 30 {
		t.Fatalf("merged shared = %d, want 30", got)
	}
	if got := merged.Get(onlyA).Uint64(); got != 1 {
		t.Fatalf("merged onlyA = %d, want 1", got)
	}
	if got := merged.Get(onlyB).Uint64(); got != 2 {
		t.Fatalf("merged onlyB = %d, want 2", got)
	}
}

func TestSetZeroRemovesEntry(t *testing.T) {
	s := New()
	rid := id(1, 1)
	_ = s.Increase(rid, alkanes.U128FromUint64(5))
	s.Set(rid, alkanes.ZeroU128)
	if !s.IsEmpty() {
		t.Fatalf("sheet should be empty after zeroing its only entry")
	}
}
