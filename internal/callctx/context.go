// Package callctx implements the C6 message context parcel (spec.md §4.7):
// the per-execution Context a guest sees at the start of every call, and the
// richer MessageContextParcel the indexer driver and VM host thread through
// one protomessage. Grounded on the teacher's opcode_dispatcher.go VMContext
// shape (caller/contract/tx-hash bundle passed into Execute), generalized
// from one flat struct to the two-tier Context/Parcel split spec.md calls
// for.
package callctx

import (
	"alkanes/internal/kv"
	"alkanes/pkg/alkanes"
)

// IncomingAlkane is one balance transferred into a call frame.
type IncomingAlkane struct {
	Id     alkanes.AlkaneId
	Amount alkanes.U128
}

// Context is what the guest sees at the start of every call (spec.md §4.7).
type Context struct {
	Myself           alkanes.AlkaneId
	Caller           alkanes.AlkaneId
	Vout             uint32
	IncomingAlkanes  []IncomingAlkane
	Inputs           []alkanes.U128
}

// Encode serializes Context as a flat byte buffer for __load_context: a
// fixed header (myself, caller, vout, incoming count) followed by the
// incoming alkanes and then the input words. Vout and the incoming count
// are 4-byte big-endian integers; every other field is made of big-endian
// 16-byte words (an id is two of them). This is a protocol-internal wire format, not a public one, since
// spec.md leaves the exact guest ABI encoding unspecified beyond "the
// serialized Context struct".
func (c Context) Encode() []byte {
	out := make([]byte, 0, 64+len(c.IncomingAlkanes)*48+len(c.Inputs)*16)
	out = append(out, c.Myself.Bytes32()...)
	out = append(out, c.Caller.Bytes32()...)
	var voutBuf [4]byte
	voutBuf[0] = byte(c.Vout >> 24)
	voutBuf[1] = byte(c.Vout >> 16)
	voutBuf[2] = byte(c.Vout >> 8)
	voutBuf[3] = byte(c.Vout)
	out = append(out, voutBuf[:]...)
	count := uint32(len(c.IncomingAlkanes))
	out = append(out, byte(count>>24), byte(count>>16), byte(count>>8), byte(count))
	for _, ia := range c.IncomingAlkanes {
		out = append(out, ia.Id.Bytes32()...)
		amt := ia.Amount.Bytes16BE()
		out = append(out, amt[:]...)
	}
	for _, w := range c.Inputs {
		b := w.Bytes16BE()
		out = append(out, b[:]...)
	}
	return out
}

// Parcel is the MessageContextParcel of spec.md §4.7: everything the VM
// host and indexer driver need for one protomessage's execution, beyond
// what the guest itself sees in Context.
type Parcel struct {
	Ctx           Context
	Transaction   []byte
	Block         []byte
	Height        uint32
	TxIndex       uint32
	Pointer       uint32
	RefundPointer uint32
	Calldata      []byte
	Store         *kv.AtomicStore
}
