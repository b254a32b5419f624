package alkanes

// Edict is a bookkeeping instruction moving amount of rune Id to logical
// output Output. Output indexes either a real vout or a virtual protostone
// slot (spec.md §3).
type Edict struct {
	Id     RuneId
	Amount U128
	Output uint32
}

// Transfer is a realized movement of one alkane/rune balance, the unit
// credited to an outpoint after a protostone completes (spec.md §8, S1).
type Transfer struct {
	Id    RuneId
	Value U128
}

// VirtualVout computes the logical vout for the i-th protostone slot of a
// transaction with n real outputs, per spec.md §4.5's "virtual vouts" rule.
func VirtualVout(nRealOutputs int, protostoneIndex int) uint32 {
	return uint32(nRealOutputs + protostoneIndex)
}
