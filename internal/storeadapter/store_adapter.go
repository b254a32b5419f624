// Package storeadapter implements the StorageAdapter contract of spec.md
// §6 directly atop internal/kv, the sync engine's view onto "what height
// have we indexed, and what did we see there" that is independent of the
// indexer's own SMT-backed state. Grounded on the teacher's
// core/ledger.go's tip-height/height-hash bookkeeping, generalized from a
// single in-memory ledger to a narrow interface over any kv.Backend.
package storeadapter

import (
	"encoding/binary"
	"fmt"

	"alkanes/internal/kv"
)

var (
	indexedHeightKey = []byte("__INTERNAL/tip-height")
)

func blockHashKey(height uint32) []byte {
	return []byte(fmt.Sprintf("__INTERNAL/block-hash/%d", height))
}

// Stats is what GetStats reports (spec.md §6 "get_stats").
type Stats struct {
	TotalEntries  uint64
	IndexedHeight uint32
	SizeBytes     int64
}

// StorageAdapter is the sync engine's narrow view onto persisted chain
// progress: indexed height, per-height block hash, and rollback (spec.md §6
// "Storage adapter (consumed)"). The state root itself is not duplicated
// here — it lives only in the SMT's own per-height root history
// (internal/smt/tree.go CommitHeight/RootAt), which runtime.Adapter.
// GetStateRoot reads directly, so there is exactly one ledger of record for
// it rather than two that could drift apart.
type StorageAdapter interface {
	GetIndexedHeight() (uint32, error)
	SetIndexedHeight(h uint32) error
	StoreBlockHash(h uint32, hash [32]byte) error
	GetBlockHash(h uint32) ([32]byte, bool, error)
	RollbackToHeight(h uint32) error
	IsAvailable() bool
	GetStats() (Stats, error)
}

// KVAdapter is the concrete StorageAdapter backed by an internal/kv
// backend directly (not through an AtomicStore checkpoint stack, since the
// sync engine's own bookkeeping commits immediately, one write at a time,
// independent of the indexer's per-block atomicity).
type KVAdapter struct {
	backend kv.Backend
}

// New wraps backend as a StorageAdapter.
func New(backend kv.Backend) *KVAdapter {
	return &KVAdapter{backend: backend}
}

func (a *KVAdapter) GetIndexedHeight() (uint32, error) {
	v, ok, err := a.backend.Get(indexedHeightKey)
	if err != nil {
		return 0, fmt.Errorf("storeadapter: get indexed height: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("storeadapter: indexed height value is %d bytes, want 4", len(v))
	}
	return binary.LittleEndian.Uint32(v), nil
}

func (a *KVAdapter) SetIndexedHeight(h uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], h)
	if err := a.backend.Put(indexedHeightKey, buf[:]); err != nil {
		return fmt.Errorf("storeadapter: set indexed height: %w", err)
	}
	return nil
}

func (a *KVAdapter) StoreBlockHash(h uint32, hash [32]byte) error {
	if err := a.backend.Put(blockHashKey(h), hash[:]); err != nil {
		return fmt.Errorf("storeadapter: store block hash: %w", err)
	}
	return nil
}

func (a *KVAdapter) GetBlockHash(h uint32) ([32]byte, bool, error) {
	v, ok, err := a.backend.Get(blockHashKey(h))
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("storeadapter: get block hash: %w", err)
	}
	if !ok {
		return [32]byte{}, false, nil
	}
	var out [32]byte
	copy(out[:], v)
	return out, true, nil
}

// RollbackToHeight discards every block-hash record above h and resets the
// indexed-height marker, the storage-side half of a reorg (spec.md §4.9
// step 3b: "mismatch => reorg: call rollback_to_height"). It is always
// called after runtime.Adapter.RollbackToHeight, which undoes the indexer's
// own SMT root/heights index, balance sheets, deployed bytecode and
// sequence counter by replaying each rolled-back height's undo journal
// (internal/indexer/driver.go RollbackToHeight) — this adapter's bookkeeping
// is derived from that state, not the other way around.
func (a *KVAdapter) RollbackToHeight(h uint32) error {
	current, err := a.GetIndexedHeight()
	if err != nil {
		return err
	}
	batch := a.backend.CreateBatch()
	for height := h + 1; height <= current; height++ {
		batch.Delete(blockHashKey(height))
	}
	if err := a.backend.Write(batch); err != nil {
		return fmt.Errorf("storeadapter: rollback batch: %w", err)
	}
	return a.SetIndexedHeight(h)
}

func (a *KVAdapter) IsAvailable() bool { return a.backend.IsAlive() }

func (a *KVAdapter) GetStats() (Stats, error) {
	height, err := a.GetIndexedHeight()
	if err != nil {
		return Stats{}, err
	}
	iter, err := a.backend.Keys()
	if err != nil {
		return Stats{}, fmt.Errorf("storeadapter: get stats: %w", err)
	}
	defer iter.Close()
	var count uint64
	for iter.Next() {
		count++
	}
	return Stats{TotalEntries: count, IndexedHeight: height}, nil
}
