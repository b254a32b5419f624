package alkanes

import (
	"fmt"

	"github.com/holiman/uint256"
)

// LEB128 over u128 is the wire format cellpacks use (spec.md §3, §6): each
// input word is a little-endian base-128 varint, 7 payload bits per byte
// with the high bit marking continuation. No example in the reference
// corpus ships a Go LEB128-over-u128 codec (the original Rust
// alkanes-leb128fmt crate has no Go analogue here), so this file
// hand-writes the codec over U128, using holiman/uint256 for the shifts;
// see DESIGN.md.

// EncodeLEB128 appends the LEB128 encoding of v to dst and returns it.
func EncodeLEB128(dst []byte, v U128) []byte {
	x := v.v
	for {
		b := byte(x.Uint64() & 0x7f)
		var shifted uint256.Int
		shifted.Rsh(&x, 7)
		x = shifted
		if x.IsZero() {
			dst = append(dst, b)
			return dst
		}
		dst = append(dst, b|0x80)
	}
}

// DecodeLEB128 reads one LEB128-encoded u128 from b, returning the value and
// the number of bytes consumed.
func DecodeLEB128(b []byte) (U128, int, error) {
	var result uint256.Int
	var shift uint
	for i := 0; i < len(b); i++ {
		if shift >= 128 {
			return U128{}, 0, fmt.Errorf("alkanes: leb128 value exceeds 128 bits")
		}
		byt := b[i]
		var chunk uint256.Int
		chunk.SetUint64(uint64(byt & 0x7f))
		chunk.Lsh(&chunk, shift)
		result.Or(&result, &chunk)
		if byt&0x80 == 0 {
			return U128{result}, i + 1, nil
		}
		shift += 7
	}
	return U128{}, 0, fmt.Errorf("alkanes: truncated leb128 sequence")
}

// PackWords15 packs a slice of encoded LEB128 bytes into 15-byte words, the
// chunking the runestone protocol field uses to lay cellpack bytes into a
// sequence of u128 varints (spec.md §3 "Wire form").
func PackWords15(flat []byte) [][]byte {
	var words [][]byte
	for i := 0; i < len(flat); i += 15 {
		end := i + 15
		if end > len(flat) {
			end = len(flat)
		}
		chunk := make([]byte, end-i)
		copy(chunk, flat[i:end])
		words = append(words, chunk)
	}
	return words
}
