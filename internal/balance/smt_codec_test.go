package balance

import (
	"testing"

	"alkanes/pkg/alkanes"
)

func TestEncodeSMTRoundTrip(t *testing.T) {
	a := alkanes.RuneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(1)}
	b := alkanes.RuneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(9)}

	s := New()
	if err := s.Increase(a, alkanes.U128FromUint64(3)); err != nil {
		t.Fatalf("increase a: %v", err)
	}
	if err := s.Increase(b, alkanes.U128FromUint64(6)); err != nil {
		t.Fatalf("increase b: %v", err)
	}

	record := EncodeSMT(s)

	got, err := AmountFromSMT(record, a)
	if err != nil {
		t.Fatalf("amount from smt a: %v", err)
	}
	if got.Uint64() != 3 {
		t.Fatalf("got %s, want 3", got)
	}

	got, err = AmountFromSMT(record, b)
	if err != nil {
		t.Fatalf("amount from smt b: %v", err)
	}
	if got.Uint64() != 6 {
		t.Fatalf("got %s, want 6", got)
	}
}

func TestAmountFromSMTMissingEntryIsZero(t *testing.T) {
	absent := alkanes.RuneId{Block: alkanes.U128FromUint64(9), Tx: alkanes.U128FromUint64(9)}
	record := EncodeSMT(New())

	got, err := AmountFromSMT(record, absent)
	if err != nil {
		t.Fatalf("amount from smt: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("expected zero for an absent entry, got %s", got)
	}
}
