package indexer

import "alkanes/internal/protostone"

// resolveFrom implements the `from` field the Protostone struct carries
// (spec.md §3) but which §4.8's state machine diagram does not elaborate
// on. Present in the original `protorune`/`alkanes` Rust crates and
// trimmed from spec.md's distillation: a protostone may declare that its
// incoming balance should be attributed to an earlier protostone's output
// slot within the same transaction, rather than to the slot its own
// position would otherwise imply (SPEC_FULL.md §4.8 "protomessage
// forwarding via from").
//
// nRealOutputs and pmIndex locate the protostone within the transaction;
// its own virtual vout is protostone.VirtualVout(nRealOutputs, pmIndex),
// which is returned when From is unset. resolveFrom returns the vout whose balances_by_output
// entry should actually be read as this protostone's incoming alkanes.
func resolveFrom(ps protostone.Protostone, nRealOutputs, pmIndex int) uint32 {
	if ps.From == nil {
		return protostone.VirtualVout(nRealOutputs, pmIndex)
	}
	return *ps.From
}
