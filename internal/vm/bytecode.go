package vm

import (
	"fmt"

	"alkanes/internal/kv"
	"alkanes/pkg/alkanes"
)

const bytecodeLabel = "/__meta"

// BytecodeStore persists deployed guest bytecode keyed by canonical alkane
// id (spec.md §6 "/__meta/<alkane>"). A factory clone gets its own copy of
// the source's bytecode under its new id.
type BytecodeStore struct {
	store *kv.AtomicStore
}

// NewBytecodeStore wraps store for bytecode access.
func NewBytecodeStore(store *kv.AtomicStore) *BytecodeStore {
	return &BytecodeStore{store: store}
}

func bytecodeKey(id alkanes.AlkaneId) []byte {
	return kv.Namespace(bytecodeLabel, id.Bytes32())
}

// Get returns the bytecode stored under id, if any.
func (b *BytecodeStore) Get(id alkanes.AlkaneId) ([]byte, bool, error) {
	return b.store.Get(bytecodeKey(id))
}

// Put stores code under id. Spec.md's alkane lifecycle says bytecode is
// "stored once... never deleted"; callers are expected to check Get first
// to avoid clobbering an existing deployment (the indexer driver, not this
// store, decides whether a write is a fresh deployment or a clone copy).
func (b *BytecodeStore) Put(id alkanes.AlkaneId, code []byte) error {
	if len(code) == 0 {
		return fmt.Errorf("vm: refusing to store empty bytecode for %s", id)
	}
	b.store.Put(bytecodeKey(id), code)
	return nil
}
