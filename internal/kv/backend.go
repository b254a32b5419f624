// Package kv implements the C1 key-value backend contract (spec.md §4.1)
// and the atomic-store checkpoint stack (spec.md §4.2) that sits on top
// of it. Two concrete backends are provided: MemBackend (RAM, for views,
// previews and tests) and BadgerBackend (disk-backed, for production),
// grounded on the only disk-KV example in the reference corpus
// (other_examples' dgraph-io/badger/v4-based key-value store).
package kv

import (
	"encoding/binary"
	"fmt"
)

// TipHeightKey is the reserved key tracking the last fully committed block
// height (spec.md §4.1, §6).
const TipHeightKey = "__INTERNAL/tip-height"

// Entry is one key/value pair returned by a prefix scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Op is one write recorded in a Batch, applied in submission order.
type Op struct {
	Delete bool
	Key    []byte
	Value  []byte
}

// Batch accumulates writes to be applied atomically by Backend.Write.
type Batch struct {
	Ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Put records a write.
func (b *Batch) Put(key, value []byte) {
	b.Ops = append(b.Ops, Op{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
}

// Delete records a deletion.
func (b *Batch) Delete(key []byte) {
	b.Ops = append(b.Ops, Op{Delete: true, Key: append([]byte(nil), key...)})
}

// KeyIterator walks every key stored in a backend, in implementation-defined
// order, honoring spec.md §4.1's "iterator of all keys" requirement.
type KeyIterator interface {
	Next() bool
	Key() []byte
	Close() error
}

// Backend is the full KV contract every concrete store honors: point get,
// prefix scan, batch write, and an iterator of all keys (spec.md §4.1). The
// Design Notes call for this concrete interface in place of the teacher's
// trait-with-many-defaulted-methods shape.
type Backend interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Write(batch *Batch) error
	ScanPrefix(prefix []byte) ([]Entry, error)
	Keys() (KeyIterator, error)
	CreateBatch() *Batch
	IsAlive() bool
	Clear() error
}

// GetTipHeight reads the reserved tip-height key (spec.md §4.1), returning 0
// if it has never been written.
func GetTipHeight(b Backend) (uint32, error) {
	v, ok, err := b.Get([]byte(TipHeightKey))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("kv: tip-height value is %d bytes, want 4", len(v))
	}
	return binary.LittleEndian.Uint32(v), nil
}

// PutTipHeight writes the reserved tip-height key into batch so it commits
// in the same write as the rest of a block's state (spec.md §9, "global
// counters... MUST be persisted in the same batch as the block's writes").
func PutTipHeight(batch *Batch, height uint32) {
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, height)
	batch.Put([]byte(TipHeightKey), v)
}

// Namespace domain-separates a logical key under label with a length
// prefix, so distinct subsystems (e.g. "/smt/node", "/runes", "/alkanes")
// can never collide on a raw key (spec.md §4.1).
func Namespace(label string, key []byte) []byte {
	out := make([]byte, 0, 2+len(label)+len(key))
	ln := uint16(len(label))
	out = append(out, byte(ln>>8), byte(ln))
	out = append(out, label...)
	out = append(out, key...)
	return out
}
