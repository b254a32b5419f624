package indexer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Outpoint identifies a transaction output, the unit balance sheets are
// keyed by (spec.md §3, §6 "/runes/...", "/alkanes/..." prefixes). RLP is
// used for its wire encoding, grounded on the teacher's `core/ledger.go`
// (`rlp.DecodeBytes` on `Block`) — the pack's own precedent for encoding
// structured records with `go-ethereum/rlp`.
type Outpoint struct {
	Txid [32]byte
	Vout uint32
}

func (o Outpoint) String() string { return fmt.Sprintf("%x:%d", o.Txid, o.Vout) }

// Bytes renders o as its RLP wire encoding, used both as a storage-key
// suffix and as the address the VM host's `__balance` treats as "who".
func (o Outpoint) Bytes() []byte {
	b, err := rlp.EncodeToBytes(o)
	if err != nil {
		panic(fmt.Sprintf("indexer: outpoint must always encode: %v", err))
	}
	return b
}

// OutpointFromBytes is the inverse of Bytes.
func OutpointFromBytes(b []byte) (Outpoint, error) {
	var o Outpoint
	if err := rlp.DecodeBytes(b, &o); err != nil {
		return Outpoint{}, fmt.Errorf("indexer: decode outpoint: %w", err)
	}
	return o, nil
}
