package vm

import (
	"encoding/binary"

	"alkanes/internal/kv"
)

var sequenceKey = []byte("/__sequence")

// Sequence is the global alkane-index counter the `__sequence` host call
// exposes (spec.md §4.6) and the indexer driver consults when allocating a
// fresh (2,n) id for a direct-init deployment (spec.md §3).
type Sequence struct {
	store *kv.AtomicStore
}

// NewSequence wraps store for sequence access.
func NewSequence(store *kv.AtomicStore) *Sequence {
	return &Sequence{store: store}
}

// Current returns the counter's present value without advancing it.
func (s *Sequence) Current() (uint64, error) {
	b, ok, err := s.store.Get(sequenceKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b), nil
}

// Next advances the counter and returns its new value, for allocating a
// fresh alkane index.
func (s *Sequence) Next() (uint64, error) {
	cur, err := s.Current()
	if err != nil {
		return 0, err
	}
	next := cur + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	s.store.Put(sequenceKey, buf[:])
	return next, nil
}
