package protostone

import (
	"testing"

	"github.com/btcsuite/btcd/wire"

	"alkanes/pkg/alkanes"
)

func buildEnvelopeTx(t *testing.T, rs Runestone, nOutputs int) *wire.MsgTx {
	t.Helper()
	script, err := Encipher(rs)
	if err != nil {
		t.Fatalf("encipher: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < nOutputs; i++ {
		tx.AddTxOut(wire.NewTxOut(0, []byte{}))
	}
	tx.AddTxOut(wire.NewTxOut(0, script))
	return tx
}

func TestParseMarksOneOutOfRangeProtostoneInvalidWithoutDroppingTx(t *testing.T) {
	rs := Runestone{
		Protostones: []Protostone{
			{
				ProtocolTag: alkanes.ProtocolTagAlkanes,
				Edicts:      []alkanes.Edict{{Id: alkanes.RuneId{Block: alkanes.U128FromUint64(1), Tx: alkanes.U128FromUint64(1)}, Amount: alkanes.U128FromUint64(1), Output: 99}},
			},
			{
				ProtocolTag: alkanes.ProtocolTagAlkanes,
				Message:     []alkanes.U128{alkanes.U128FromUint64(1), alkanes.U128FromUint64(0), alkanes.U128FromUint64(0)},
			},
		},
	}
	// One real output plus the OP_RETURN envelope output itself.
	tx := buildEnvelopeTx(t, rs, 1)

	got, stones, ok := Parse(tx)
	if !ok {
		t.Fatalf("expected a runestone with one bad protostone to still parse")
	}
	if len(stones) != 2 {
		t.Fatalf("got %d protostones, want 2 (none dropped)", len(stones))
	}
	if !stones[0].Invalid {
		t.Fatalf("expected the out-of-range-edict protostone to be marked Invalid")
	}
	if stones[1].Invalid {
		t.Fatalf("expected the sibling protostone to survive untouched")
	}
	if !stones[1].IsCellpackMessage() {
		t.Fatalf("expected the sibling protostone's cellpack message to still be dispatchable")
	}
	if len(got.Protostones) != 2 {
		t.Fatalf("got.Protostones should mirror stones, got %d", len(got.Protostones))
	}
}

func TestParseDropsWholeTxOnTopLevelPointerOutOfRange(t *testing.T) {
	rs := Runestone{Pointer: u32(99)}
	tx := buildEnvelopeTx(t, rs, 1)

	if _, _, ok := Parse(tx); ok {
		t.Fatalf("expected an out-of-range top-level pointer to void the whole runestone")
	}
}

func TestValidateProtostoneIsolatesFailureFromRunestoneValidate(t *testing.T) {
	rs := Runestone{
		Pointer:     u32(0),
		Protostones: []Protostone{{ProtocolTag: alkanes.ProtocolTagAlkanes, Refund: u32(99)}},
	}
	if err := Validate(rs, 1); err != nil {
		t.Fatalf("expected Validate to ignore a protostone-level problem, got %v", err)
	}
	if err := ValidateProtostone(rs.Protostones[0], uint64(1+len(rs.Protostones))); err == nil {
		t.Fatalf("expected ValidateProtostone to reject the out-of-range refund")
	}
}
