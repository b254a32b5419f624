package kv

import (
	"sort"
	"sync"
)

// MemBackend is an in-memory Backend guarded by a single RWMutex, mirroring
// the teacher's sandboxes-map locking idiom in core/vm_sandbox_management.go
// (a package-level map protected by sync.RWMutex). Used for views, previews
// and unit tests (spec.md §4.1).
type MemBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{data: make(map[string][]byte)}
}

func (m *MemBackend) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemBackend) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemBackend) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemBackend) Write(batch *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range batch.Ops {
		if op.Delete {
			delete(m.data, string(op.Key))
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		m.data[string(op.Key)] = v
	}
	return nil
}

func (m *MemBackend) ScanPrefix(prefix []byte) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	p := string(prefix)
	for k, v := range m.data {
		if len(k) >= len(p) && k[:len(p)] == p {
			vv := make([]byte, len(v))
			copy(vv, v)
			out = append(out, Entry{Key: []byte(k), Value: vv})
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

type memKeyIterator struct {
	keys []string
	pos  int
}

func (it *memKeyIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memKeyIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *memKeyIterator) Close() error { return nil }

func (m *MemBackend) Keys() (KeyIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memKeyIterator{keys: keys, pos: -1}, nil
}

func (m *MemBackend) CreateBatch() *Batch { return NewBatch() }

func (m *MemBackend) IsAlive() bool { return true }

func (m *MemBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}
