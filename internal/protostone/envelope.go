package protostone

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"alkanes/internal/errs"
	"alkanes/pkg/alkanes"
)

// runeMagicOpcode is the opcode immediately following OP_RETURN that
// tags a script as a runestone envelope (the published Runes format
// reserves OP_13 for this; we follow the same convention).
const runeMagicOpcode = txscript.OP_13

// findEnvelope scans tx's outputs for the first OP_RETURN script whose
// first opcode after OP_RETURN is the rune protocol marker, returning the
// remaining pushed data concatenated (spec.md §4.5 step 1). Everything
// before the marker output is ignored; at most one output is treated as
// the envelope, matching "the first OP_RETURN whose script is a valid
// runestone envelope".
func findEnvelope(tx *wire.MsgTx) ([]byte, bool) {
	for _, out := range tx.TxOut {
		script := out.PkScript
		if len(script) < 2 || script[0] != txscript.OP_RETURN {
			continue
		}
		if script[1] != byte(runeMagicOpcode) {
			continue
		}
		tokenizer := txscript.MakeScriptTokenizer(0, script[2:])
		var payload []byte
		for tokenizer.Next() {
			payload = append(payload, tokenizer.Data()...)
		}
		if tokenizer.Err() != nil {
			continue
		}
		return payload, true
	}
	return nil, false
}

// decodeVarintWords decodes a flat byte payload into u128 words, each word
// LEB128-encoded, per spec.md §4.5 step 2 / §6's wire-format note.
func decodeVarintWords(payload []byte) ([]alkanes.U128, error) {
	var words []alkanes.U128
	for len(payload) > 0 {
		v, n, err := alkanes.DecodeLEB128(payload)
		if err != nil {
			return nil, fmt.Errorf("protostone: %w: %v", errs.ErrRunestoneMalformed, err)
		}
		words = append(words, v)
		payload = payload[n:]
	}
	return words, nil
}

// Parse decodes tx into a Runestone plus its protostones, or returns
// ok=false if tx carries no valid envelope (spec.md §4.5). A malformed
// envelope, or a runestone that fails its own top-level Validate, is
// reported via ok=false rather than an error, so the caller (the indexer
// driver) can drop just this transaction and continue processing the
// block (spec.md:311 "Runestone malformed => that transaction is
// skipped, block continues"). A protostone that fails ValidateProtostone
// does not take the whole transaction down with it: it is marked Invalid
// in place (spec.md:312 "Protostone invalid => that protostone is skipped,
// tx continues") and left in the stream so later protostones keep their
// original virtual vout slots.
func Parse(tx *wire.MsgTx) (Runestone, []Protostone, bool) {
	payload, found := findEnvelope(tx)
	if !found {
		return Runestone{}, nil, false
	}
	words, err := decodeVarintWords(payload)
	if err != nil {
		return Runestone{}, nil, false
	}
	rs, err := DecodeRunestone(words)
	if err != nil {
		return Runestone{}, nil, false
	}
	if err := Validate(rs, len(tx.TxOut)); err != nil {
		return Runestone{}, nil, false
	}
	n := uint64(len(tx.TxOut) + len(rs.Protostones))
	for i := range rs.Protostones {
		if err := ValidateProtostone(rs.Protostones[i], n); err != nil {
			rs.Protostones[i].Invalid = true
		}
	}
	return rs, rs.Protostones, true
}

// Encipher is the inverse of Parse's decode path: it builds the OP_RETURN
// script for rs, for use by tests and by any future transaction-building
// caller.
func Encipher(rs Runestone) ([]byte, error) {
	words := EncipherRunestone(rs)
	var flat []byte
	for _, w := range words {
		flat = alkanes.EncodeLEB128(flat, w)
	}
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddOp(runeMagicOpcode)
	for _, chunk := range alkanes.PackWords15(flat) {
		builder.AddData(chunk)
	}
	return builder.Script()
}
