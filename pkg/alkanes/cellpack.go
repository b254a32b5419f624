package alkanes

import "fmt"

// Cellpack is an ordered list of u128 "inputs". The first two words encode
// the target AlkaneId; the remainder is opaque guest calldata (spec.md §3).
type Cellpack struct {
	Inputs []U128
}

// Target returns the AlkaneId the cellpack addresses.
func (c Cellpack) Target() (AlkaneId, error) {
	if len(c.Inputs) < 2 {
		return AlkaneId{}, fmt.Errorf("alkanes: cellpack needs at least 2 inputs for a target, got %d", len(c.Inputs))
	}
	return AlkaneId{Block: c.Inputs[0], Tx: c.Inputs[1]}, nil
}

// Calldata returns the inputs following the target pair.
func (c Cellpack) Calldata() []U128 {
	if len(c.Inputs) <= 2 {
		return nil
	}
	return c.Inputs[2:]
}

// Encode serializes the cellpack as flat LEB128 bytes, one word after
// another, with no length prefix (the caller chunks the result into 15-byte
// runestone protocol-field words via PackWords15).
func (c Cellpack) Encode() []byte {
	var out []byte
	for _, w := range c.Inputs {
		out = EncodeLEB128(out, w)
	}
	return out
}

// DecodeCellpack reads a flat LEB128 byte stream back into a Cellpack. It is
// the exact inverse of Encode: decode(encode(c)) == c for any cellpack with
// up to 16 inputs (spec.md §8).
func DecodeCellpack(flat []byte) (Cellpack, error) {
	var inputs []U128
	off := 0
	for off < len(flat) {
		v, n, err := DecodeLEB128(flat[off:])
		if err != nil {
			return Cellpack{}, fmt.Errorf("alkanes: decode cellpack at offset %d: %w", off, err)
		}
		inputs = append(inputs, v)
		off += n
	}
	return Cellpack{Inputs: inputs}, nil
}
