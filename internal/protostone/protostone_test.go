package protostone

import (
	"reflect"
	"testing"

	"alkanes/pkg/alkanes"
)

func u32(v uint32) *uint32 { return &v }
func u64(v uint64) *uint64 { return &v }

func runeId(block, tx uint64) alkanes.RuneId {
	return alkanes.RuneId{Block: alkanes.U128FromUint64(block), Tx: alkanes.U128FromUint64(tx)}
}

func TestProtostoneBurnRoundTrip(t *testing.T) {
	ps := Protostone{
		ProtocolTag: alkanes.ProtocolTagProtoburn,
		Pointer:     u32(3),
		Burn:        u64(1),
	}
	body := EncipherProtostoneBody(ps)
	got, err := DecodeProtostoneBody(ps.ProtocolTag, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, ps) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ps)
	}
}

func TestProtostoneEdictRoundTrip(t *testing.T) {
	ps := Protostone{
		ProtocolTag: alkanes.ProtocolTagAlkanes,
		Pointer:     u32(3),
		Edicts: []alkanes.Edict{
			{Id: runeId(8400000, 1), Amount: alkanes.U128FromUint64(123456789), Output: 2},
		},
	}
	body := EncipherProtostoneBody(ps)
	got, err := DecodeProtostoneBody(ps.ProtocolTag, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, ps) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ps)
	}
}

func TestProtostoneMultipleEdictsDeltaEncoded(t *testing.T) {
	ps := Protostone{
		ProtocolTag: alkanes.ProtocolTagAlkanes,
		Edicts: []alkanes.Edict{
			{Id: runeId(100, 1), Amount: alkanes.U128FromUint64(1), Output: 0},
			{Id: runeId(100, 2), Amount: alkanes.U128FromUint64(2), Output: 1},
			{Id: runeId(105, 0), Amount: alkanes.U128FromUint64(3), Output: 2},
		},
	}
	body := EncipherProtostoneBody(ps)
	got, err := DecodeProtostoneBody(ps.ProtocolTag, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Edicts, ps.Edicts) {
		t.Fatalf("edicts mismatch: got %+v, want %+v", got.Edicts, ps.Edicts)
	}
}

func TestProtostoneBurnRequiresProtocolTag13(t *testing.T) {
	ps := Protostone{ProtocolTag: alkanes.ProtocolTagAlkanes, Burn: u64(1)}
	body := EncipherProtostoneBody(ps)
	if _, err := DecodeProtostoneBody(ps.ProtocolTag, body); err == nil {
		t.Fatalf("expected error for burn set without protocol_tag 13")
	}
}

func TestDecodeProtostoneStreamMultiple(t *testing.T) {
	stones := []Protostone{
		{ProtocolTag: alkanes.ProtocolTagProtoburn, Pointer: u32(3), Burn: u64(1)},
		{
			ProtocolTag: alkanes.ProtocolTagAlkanes,
			Pointer:     u32(2),
			Message:     []alkanes.U128{alkanes.U128FromUint64(1), alkanes.U128FromUint64(0), alkanes.U128FromUint64(0)},
		},
	}
	flat := EncipherProtostoneStream(stones)
	got, err := DecodeProtostoneStream(flat)
	if err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if !reflect.DeepEqual(got, stones) {
		t.Fatalf("stream round trip mismatch: got %+v, want %+v", got, stones)
	}
}

func TestRunestoneRoundTrip(t *testing.T) {
	rs := Runestone{
		Edicts:  []alkanes.Edict{{Id: runeId(1, 1), Amount: alkanes.U128FromUint64(5), Output: 0}},
		Pointer: u32(1),
		Protostones: []Protostone{
			{ProtocolTag: alkanes.ProtocolTagAlkanes, Pointer: u32(1), Message: []alkanes.U128{alkanes.U128FromUint64(1), alkanes.U128FromUint64(0), alkanes.U128FromUint64(0)}},
		},
	}
	words := EncipherRunestone(rs)
	got, err := DecodeRunestone(words)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, rs) {
		t.Fatalf("runestone round trip mismatch: got %+v, want %+v", got, rs)
	}
}

func TestValidateRejectsOutOfRangePointer(t *testing.T) {
	rs := Runestone{Pointer: u32(5)}
	if err := Validate(rs, 2); err == nil {
		t.Fatalf("expected out-of-range pointer to fail validation")
	}
}

func TestValidateAcceptsVirtualVout(t *testing.T) {
	rs := Runestone{
		Pointer:     u32(2), // n_outputs=2, one protostone -> valid range is [0,3)
		Protostones: []Protostone{{ProtocolTag: alkanes.ProtocolTagAlkanes}},
	}
	if err := Validate(rs, 2); err != nil {
		t.Fatalf("expected virtual vout pointer to validate: %v", err)
	}
}

func TestVirtualVout(t *testing.T) {
	if got := VirtualVout(2, 0); got != 2 {
		t.Fatalf("virtual vout = %d, want 2", got)
	}
	if got := VirtualVout(2, 1); got != 3 {
		t.Fatalf("virtual vout = %d, want 3", got)
	}
}
