package protostone

import (
	"fmt"

	"alkanes/internal/errs"
	"alkanes/pkg/alkanes"
)

var errTruncatedTriple = fmt.Errorf("protostone: %w: truncated tag/length/payload triple", errs.ErrRunestoneMalformed)

// Runestone is the decoded OP_RETURN envelope of one transaction
// (spec.md §3, §4.5).
type Runestone struct {
	Edicts     []alkanes.Edict
	Pointer    *uint32
	Protostones []Protostone
}

// Protostone is one record within the tag-13 protostone stream
// (spec.md §3).
type Protostone struct {
	ProtocolTag uint64
	Message     []alkanes.U128
	Pointer     *uint32
	Refund      *uint32
	From        *uint32
	Burn        *uint64
	Edicts      []alkanes.Edict

	// Invalid is set by Parse when this protostone fails ValidateProtostone
	// (spec.md:312 "Protostone invalid => that protostone is skipped, tx
	// continues"). The protostone stays in the stream at its original index
	// — dropping it outright would renumber every later protostone's
	// virtual vout (VirtualVout is nRealOutputs + position in this slice) —
	// but callers must treat an Invalid protostone as a no-op: no edicts
	// applied, no burn minted, no cellpack dispatched.
	Invalid bool
}

// IsCellpackMessage reports whether Message should be interpreted as a
// cellpack (spec.md §3: "a message is a cellpack when protocol_tag == 1").
func (p Protostone) IsCellpackMessage() bool {
	return p.ProtocolTag == alkanes.ProtocolTagAlkanes
}

// Cellpack interprets Message as a cellpack, valid only when
// IsCellpackMessage is true.
func (p Protostone) Cellpack() alkanes.Cellpack {
	return alkanes.Cellpack{Inputs: p.Message}
}

func u32Ptr(words []alkanes.U128) (*uint32, error) {
	if len(words) != 1 {
		return nil, fmt.Errorf("protostone: %w: expected exactly one word, got %d", errs.ErrRunestoneMalformed, len(words))
	}
	v := uint32(words[0].Uint64())
	return &v, nil
}

// decodeEdicts reads a sequence of (block_delta, tx_or_delta, amount,
// output) quadruples, one edict per occurrence of tag, applying delta
// encoding across occurrences within this list (spec.md §4.5 step 4).
func decodeEdicts(occurrences [][]alkanes.U128) ([]alkanes.Edict, error) {
	var out []alkanes.Edict
	prev := alkanes.RuneId{}
	for _, payload := range occurrences {
		if len(payload) != 4 {
			return nil, fmt.Errorf("protostone: %w: edict record has %d words, want 4", errs.ErrRunestoneMalformed, len(payload))
		}
		blockDelta, txOrDelta := payload[0], payload[1]
		var id alkanes.RuneId
		if blockDelta.IsZero() {
			tx, err := prev.Tx.Add(txOrDelta)
			if err != nil {
				return nil, fmt.Errorf("protostone: %w: edict tx delta overflow", errs.ErrRunestoneMalformed)
			}
			id = alkanes.RuneId{Block: prev.Block, Tx: tx}
		} else {
			block, err := prev.Block.Add(blockDelta)
			if err != nil {
				return nil, fmt.Errorf("protostone: %w: edict block delta overflow", errs.ErrRunestoneMalformed)
			}
			id = alkanes.RuneId{Block: block, Tx: txOrDelta}
		}
		out = append(out, alkanes.Edict{
			Id:     id,
			Amount: payload[2],
			Output: uint32(payload[3].Uint64()),
		})
		prev = id
	}
	return out, nil
}

func encodeEdicts(edicts []alkanes.Edict) []alkanes.U128 {
	var out []alkanes.U128
	prev := alkanes.RuneId{}
	for _, e := range edicts {
		blockDelta, txOrDelta, err := prev.Delta(e.Id)
		if err != nil {
			// Delta fails (u128 sub underflow) only if ids are not in ascending order;
			// callers are expected to sort edicts by id before encoding.
			blockDelta, txOrDelta = e.Id.Block, e.Id.Tx
		}
		out = append(out, blockDelta, txOrDelta, e.Amount, alkanes.U128FromUint64(uint64(e.Output)))
		prev = e.Id
	}
	return out
}

// DecodeProtostoneBody decodes one protostone's flat word list into its
// pointer/refund/from/burn/edicts/message fields (spec.md §4.5 step 4).
func DecodeProtostoneBody(protocolTag uint64, body []alkanes.U128) (Protostone, error) {
	triples, err := readTriples(body)
	if err != nil {
		return Protostone{}, err
	}
	ps := Protostone{ProtocolTag: protocolTag}
	var edictOccurrences [][]alkanes.U128
	for _, tr := range triples {
		switch tr.Tag {
		case StoneTagMessage:
			ps.Message = append(ps.Message, tr.Payload...)
		case StoneTagPointer:
			ps.Pointer, err = u32Ptr(tr.Payload)
		case StoneTagRefund:
			ps.Refund, err = u32Ptr(tr.Payload)
		case StoneTagFrom:
			ps.From, err = u32Ptr(tr.Payload)
		case StoneTagBurn:
			var v *uint32
			v, err = u32Ptr(tr.Payload)
			if err == nil {
				x := uint64(*v)
				ps.Burn = &x
			}
		case StoneTagEdict:
			edictOccurrences = append(edictOccurrences, tr.Payload)
		default:
			// Unknown tags are ignored, matching the Runes convention of
			// even/odd tags (an unrecognized even tag would be fatal; we
			// treat every unrecognized protostone tag as forward-compatible
			// no-op data, since spec.md §4.5 does not call for cenotaphs).
		}
		if err != nil {
			return Protostone{}, fmt.Errorf("protostone: %w", err)
		}
	}
	ps.Edicts, err = decodeEdicts(edictOccurrences)
	if err != nil {
		return Protostone{}, err
	}
	if ps.Burn != nil && ps.ProtocolTag != alkanes.ProtocolTagProtoburn {
		return Protostone{}, fmt.Errorf("protostone: %w: burn set with protocol_tag %d, must be %d",
			errs.ErrProtostoneInvalid, ps.ProtocolTag, alkanes.ProtocolTagProtoburn)
	}
	return ps, nil
}

// EncipherProtostoneBody is the inverse of DecodeProtostoneBody, used both
// by the encoder and by round-trip tests (spec.md §8).
func EncipherProtostoneBody(ps Protostone) []alkanes.U128 {
	var out []alkanes.U128
	if len(ps.Message) > 0 {
		out = writeTriple(out, StoneTagMessage, ps.Message)
	}
	if ps.Pointer != nil {
		out = writeTriple(out, StoneTagPointer, []alkanes.U128{alkanes.U128FromUint64(uint64(*ps.Pointer))})
	}
	if ps.Refund != nil {
		out = writeTriple(out, StoneTagRefund, []alkanes.U128{alkanes.U128FromUint64(uint64(*ps.Refund))})
	}
	if ps.From != nil {
		out = writeTriple(out, StoneTagFrom, []alkanes.U128{alkanes.U128FromUint64(uint64(*ps.From))})
	}
	if ps.Burn != nil {
		out = writeTriple(out, StoneTagBurn, []alkanes.U128{alkanes.U128FromUint64(*ps.Burn)})
	}
	// One StoneTagEdict record per edict, the layout decodeEdicts reads.
	edictWords := encodeEdicts(ps.Edicts)
	for i := 0; i+4 <= len(edictWords); i += 4 {
		out = writeTriple(out, StoneTagEdict, edictWords[i:i+4])
	}
	return out
}

// DecodeProtostoneStream splits the flat word list carried under
// Runestone's tag-13 field into consecutive {protocol_tag, len, body[len]}
// records, decoding each into a Protostone (spec.md §4.5 step 3).
func DecodeProtostoneStream(flat []alkanes.U128) ([]Protostone, error) {
	i := 0
	var out []Protostone
	for i < len(flat) {
		if i+1 >= len(flat) {
			return nil, errTruncatedTriple
		}
		protocolTag := flat[i].Uint64()
		length := flat[i+1].Uint64()
		i += 2
		if length > uint64(len(flat)-i) {
			return nil, errTruncatedTriple
		}
		body := flat[i : i+int(length)]
		i += int(length)
		ps, err := DecodeProtostoneBody(protocolTag, body)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, nil
}

// EncipherProtostoneStream is the inverse of DecodeProtostoneStream.
func EncipherProtostoneStream(stones []Protostone) []alkanes.U128 {
	var out []alkanes.U128
	for _, ps := range stones {
		body := EncipherProtostoneBody(ps)
		out = append(out, alkanes.U128FromUint64(ps.ProtocolTag), alkanes.U128FromUint64(uint64(len(body))))
		out = append(out, body...)
	}
	return out
}

// DecodeRunestone decodes the full varint word list read from an OP_RETURN
// envelope (spec.md §4.5 steps 2-3).
func DecodeRunestone(words []alkanes.U128) (Runestone, error) {
	triples, err := readTriples(words)
	if err != nil {
		return Runestone{}, err
	}
	rs := Runestone{}
	var edictOccurrences [][]alkanes.U128
	for _, tr := range triples {
		switch tr.Tag {
		case RuneTagBody:
			edictOccurrences = append(edictOccurrences, tr.Payload)
		case RuneTagPointer:
			rs.Pointer, err = u32Ptr(tr.Payload)
			if err != nil {
				return Runestone{}, fmt.Errorf("runestone: %w", err)
			}
		case RuneTagProtocol:
			rs.Protostones, err = DecodeProtostoneStream(tr.Payload)
			if err != nil {
				return Runestone{}, err
			}
		}
	}
	rs.Edicts, err = decodeEdicts(edictOccurrences)
	if err != nil {
		return Runestone{}, err
	}
	return rs, nil
}

// EncipherRunestone is the inverse of DecodeRunestone.
func EncipherRunestone(rs Runestone) []alkanes.U128 {
	var out []alkanes.U128
	// One RuneTagBody record per edict, the layout decodeEdicts reads.
	edictWords := encodeEdicts(rs.Edicts)
	for i := 0; i+4 <= len(edictWords); i += 4 {
		out = writeTriple(out, RuneTagBody, edictWords[i:i+4])
	}
	if rs.Pointer != nil {
		out = writeTriple(out, RuneTagPointer, []alkanes.U128{alkanes.U128FromUint64(uint64(*rs.Pointer))})
	}
	if len(rs.Protostones) > 0 {
		out = writeTriple(out, RuneTagProtocol, EncipherProtostoneStream(rs.Protostones))
	}
	return out
}

// VirtualVout returns the logical vout for the i'th protostone slot of a
// transaction with nRealOutputs real outputs (spec.md §3, §4.5 edge cases).
func VirtualVout(nRealOutputs, protostoneIndex int) uint32 {
	return alkanes.VirtualVout(nRealOutputs, protostoneIndex)
}

// Validate checks the runestone's own top-level invariants from spec.md
// §4.5 step 5: the top-level pointer and every top-level edict output must
// address a real output or a virtual protostone slot. A failure here
// voids the whole runestone (spec.md:311 "Runestone malformed => that
// transaction is skipped, block continues") — unlike ValidateProtostone,
// whose failures are scoped to one protostone.
func Validate(rs Runestone, nRealOutputs int) error {
	n := uint64(nRealOutputs + len(rs.Protostones))
	if rs.Pointer != nil && uint64(*rs.Pointer) >= n {
		return fmt.Errorf("runestone: %w: pointer %d out of range (n=%d)", errs.ErrProtostoneInvalid, *rs.Pointer, n)
	}
	for _, e := range rs.Edicts {
		if uint64(e.Output) >= n {
			return fmt.Errorf("runestone: %w: edict output %d out of range (n=%d)", errs.ErrProtostoneInvalid, e.Output, n)
		}
	}
	return nil
}

// ValidateProtostone checks one protostone's own invariants against n real
// outputs plus virtual protostone slots (spec.md §4.5 step 5): burn implies
// protocol_tag 13, and every pointer/refund/edict output must address a
// real output or a virtual protostone slot. A failure here is scoped to ps
// alone (spec.md:312 "Protostone invalid => that protostone is skipped, tx
// continues"), never the rest of the runestone.
func ValidateProtostone(ps Protostone, n uint64) error {
	if ps.Burn != nil && ps.ProtocolTag != alkanes.ProtocolTagProtoburn {
		return fmt.Errorf("protostone: %w: burn set with protocol_tag %d", errs.ErrProtostoneInvalid, ps.ProtocolTag)
	}
	if ps.Pointer != nil && uint64(*ps.Pointer) >= n {
		return fmt.Errorf("protostone: %w: pointer %d out of range (n=%d)", errs.ErrProtostoneInvalid, *ps.Pointer, n)
	}
	if ps.Refund != nil && uint64(*ps.Refund) >= n {
		return fmt.Errorf("protostone: %w: refund %d out of range (n=%d)", errs.ErrProtostoneInvalid, *ps.Refund, n)
	}
	for _, e := range ps.Edicts {
		if uint64(e.Output) >= n {
			return fmt.Errorf("protostone: %w: edict output %d out of range (n=%d)", errs.ErrProtostoneInvalid, e.Output, n)
		}
	}
	return nil
}
