package indexer

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

func buildInscriptionScript(t *testing.T, payload []byte) []byte {
	t.Helper()
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)
	builder.AddOp(txscript.OP_IF)
	for len(payload) > 0 {
		n := len(payload)
		if n > 520 {
			n = 520
		}
		builder.AddData(payload[:n])
		payload = payload[n:]
	}
	builder.AddOp(txscript.OP_ENDIF)
	script, err := builder.Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	return script
}

func TestExtractInscriptionFindsEnvelope(t *testing.T) {
	payload := []byte("\x00asm fake wasm bytes")
	script := buildInscriptionScript(t, payload)

	tx := wire.NewMsgTx(wire.TxVersion)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = wire.TxWitness{script}
	tx.AddTxIn(in)

	got, ok := extractInscription(tx)
	if !ok {
		t.Fatalf("expected envelope to be found")
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestExtractInscriptionAbsent(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = wire.TxWitness{[]byte{0x51}} // OP_1, no envelope
	tx.AddTxIn(in)

	if _, ok := extractInscription(tx); ok {
		t.Fatalf("expected no envelope")
	}
}

func TestExtractInscriptionNoInputs(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if _, ok := extractInscription(tx); ok {
		t.Fatalf("expected false for a tx with no inputs")
	}
}
