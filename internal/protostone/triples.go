// Package protostone implements the C4 runestone/protostone parser
// (spec.md §4.5): it turns one Bitcoin-family transaction into an ordered
// list of edicts and protostones, or nil if the transaction carries no
// valid envelope. Grounded on the teacher's corpus-wide absence of a Rune
// parser: the OP_RETURN scan and data-push handling follow the btcd
// wire/txscript idiom shown across the pack's Bitcoin-family example files
// (script construction via txscript.NewScriptBuilder, transaction shape via
// wire.MsgTx/wire.TxOut), and the varint/tag/length/payload layering follows
// spec.md §4.5 and §6 directly, since the upstream ordinals crate that
// defines the real Runestone tag numbers was not part of the retrieved
// corpus. Round-trip correctness against this package's own encoder is the
// target (spec.md §8), not bit-compatibility with mainnet Rune indexers.
package protostone

import "alkanes/pkg/alkanes"

// Tag numbers used at the Runestone level (the outer varint list decoded
// from the OP_RETURN envelope).
const (
	RuneTagBody     uint64 = 0  // repeated: one edict's 4 words per occurrence
	RuneTagPointer  uint64 = 2  // single word: default output
	RuneTagProtocol uint64 = 13 // payload is the flat protostone stream
)

// Tag numbers used inside one protostone's body (spec.md §4.5 step 4).
const (
	StoneTagMessage uint64 = 0 // cellpack / calldata words
	StoneTagPointer uint64 = 2
	StoneTagRefund  uint64 = 4
	StoneTagFrom    uint64 = 6
	StoneTagBurn    uint64 = 8
	StoneTagEdict   uint64 = 10 // repeated: one edict's 4 words per occurrence
)

// triple is one (tag, length, payload) record read from a flat u128 word
// list (spec.md §4.5 step 3).
type triple struct {
	Tag     uint64
	Payload []alkanes.U128
}

// readTriples repeatedly consumes (tag, length, payload[length]) records
// from words until exhausted. A malformed trailing record (tag or length
// present but payload truncated) is reported as an error so callers can
// drop the whole envelope per spec.md §4.5's malformed-envelope edge case.
func readTriples(words []alkanes.U128) ([]triple, error) {
	var out []triple
	i := 0
	for i < len(words) {
		if i+1 >= len(words) {
			return nil, errTruncatedTriple
		}
		tag := words[i].Uint64()
		length := words[i+1].Uint64()
		i += 2
		if length > uint64(len(words)-i) {
			return nil, errTruncatedTriple
		}
		payload := words[i : i+int(length)]
		i += int(length)
		out = append(out, triple{Tag: tag, Payload: payload})
	}
	return out, nil
}

// writeTriple appends a (tag, length, payload) record to dst.
func writeTriple(dst []alkanes.U128, tag uint64, payload []alkanes.U128) []alkanes.U128 {
	dst = append(dst, alkanes.U128FromUint64(tag))
	dst = append(dst, alkanes.U128FromUint64(uint64(len(payload))))
	dst = append(dst, payload...)
	return dst
}
