package alkanes

import "fmt"

// AlkaneId identifies a deployed guest program: the (block, tx) pair it was
// created under. Reserved block values select deployment semantics in the
// indexer driver (spec.md §3):
//
//	(1, 0)  direct init, caller-chosen tx index allocated sequentially
//	(3, n)  predictable deployment under name n, resolves to (4, n)
//	(5, n)  factory clone of (2, n), resolves to new (2, next)
//	(6, n)  factory clone of (4, n), resolves to new (2, next)
//	(2, n) and (4, n) are canonical "deployed" ids.
type AlkaneId struct {
	Block U128
	Tx    U128
}

const (
	HeaderDirectInit        uint64 = 1
	HeaderPredictable       uint64 = 3
	HeaderFactoryCloneOf2   uint64 = 5
	HeaderFactoryCloneOf4   uint64 = 6
	HeaderDeployedLegacy    uint64 = 2
	HeaderDeployedPredicted uint64 = 4
)

// IsReservedHeader reports whether block matches one of the special
// deployment-dispatch headers rather than a canonical deployed id.
func (id AlkaneId) IsReservedHeader() bool {
	switch id.Block.Uint64() {
	case HeaderDirectInit, HeaderPredictable, HeaderFactoryCloneOf2, HeaderFactoryCloneOf4:
		return true
	default:
		return false
	}
}

// IsCanonical reports whether id is a (2,n) or (4,n) deployed alkane id.
func (id AlkaneId) IsCanonical() bool {
	b := id.Block.Uint64()
	return b == HeaderDeployedLegacy || b == HeaderDeployedPredicted
}

func (id AlkaneId) String() string {
	return fmt.Sprintf("%s:%s", id.Block, id.Tx)
}

// Bytes32 serializes the id as two 16-byte big-endian words, matching the
// wire layout used for key construction under /__meta/<alkane>.
func (id AlkaneId) Bytes32() []byte {
	b := id.Block.Bytes16BE()
	t := id.Tx.Bytes16BE()
	out := make([]byte, 32)
	copy(out[:16], b[:])
	copy(out[16:], t[:])
	return out
}

// AlkaneIdFromBytes32 is the inverse of Bytes32.
func AlkaneIdFromBytes32(b []byte) (AlkaneId, error) {
	if len(b) != 32 {
		return AlkaneId{}, fmt.Errorf("alkanes: alkane id must be 32 bytes, got %d", len(b))
	}
	block, err := U128FromBytesBE(b[:16])
	if err != nil {
		return AlkaneId{}, err
	}
	tx, err := U128FromBytesBE(b[16:])
	if err != nil {
		return AlkaneId{}, err
	}
	return AlkaneId{Block: block, Tx: tx}, nil
}

// RuneId identifies a rune namespace: (block, tx). Protocol tag 1 scopes the
// alkanes namespace; tag 13 marks protoburns (spec.md §3).
type RuneId struct {
	Block U128
	Tx    U128
}

const (
	ProtocolTagAlkanes  uint64 = 1
	ProtocolTagProtoburn uint64 = 13
)

func (id RuneId) String() string { return fmt.Sprintf("%s:%s", id.Block, id.Tx) }

// Less gives RuneId a total order (block then tx) so sheets and indexes can
// iterate deterministically.
func (id RuneId) Less(o RuneId) bool {
	if c := id.Block.Cmp(o.Block); c != 0 {
		return c < 0
	}
	return id.Tx.Cmp(o.Tx) < 0
}

// Delta returns the (block, tx) delta from id to next, used to
// delta-encode edict ids within one edict list. It mirrors the
// ProtoruneRuneId.delta behavior in original_source's protorune-support
// crate: if the block delta is zero, tx is a delta too; otherwise tx is
// taken as an absolute value.
func (id RuneId) Delta(next RuneId) (blockDelta, tx U128, err error) {
	blockDelta, err = next.Block.Sub(id.Block)
	if err != nil {
		return U128{}, U128{}, err
	}
	if blockDelta.IsZero() {
		tx, err = next.Tx.Sub(id.Tx)
		if err != nil {
			return U128{}, U128{}, err
		}
		return blockDelta, tx, nil
	}
	return blockDelta, next.Tx, nil
}

// AlkaneIdToRuneId converts an alkane id to the rune id of its fungible unit
// (they share the same (block,tx) pair under the alkanes protocol tag).
func AlkaneIdToRuneId(id AlkaneId) RuneId {
	return RuneId{Block: id.Block, Tx: id.Tx}
}
