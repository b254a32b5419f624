package kv

import "sync"

// overlay is one level of the checkpoint stack: a set of pending writes not
// yet visible to the backend.
type overlay struct {
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newOverlay() *overlay {
	return &overlay{writes: make(map[string][]byte), deletes: make(map[string]struct{})}
}

// AtomicStore wraps a Backend with a stack of in-memory overlay maps,
// giving checkpoint/commit/rollback semantics (spec.md §4.2), grounded on
// the teacher's Ledger WAL-replay-then-apply pattern in core/ledger.go
// (NewLedger/applyBlock), generalized from "one WAL plus in-memory maps" to
// "a stack of overlays over a backend".
//
// Multiple AtomicStore handles may share one stack (via Derive), in which
// case writes made through one are immediately visible to the others —
// this is how nested VM call frames observe their parent's uncommitted
// writes.
type AtomicStore struct {
	mu      *sync.Mutex
	backend Backend
	stack   *[]*overlay
	prefix  []byte
}

// NewAtomicStore creates a fresh store with a single base overlay already
// pushed, so writes always have somewhere to land.
func NewAtomicStore(backend Backend) *AtomicStore {
	stack := []*overlay{newOverlay()}
	return &AtomicStore{mu: &sync.Mutex{}, backend: backend, stack: &stack}
}

func (a *AtomicStore) key(k []byte) []byte {
	if len(a.prefix) == 0 {
		return k
	}
	out := make([]byte, 0, len(a.prefix)+len(k))
	out = append(out, a.prefix...)
	out = append(out, k...)
	return out
}

// Checkpoint pushes a fresh overlay; writes made after this call land on
// the new overlay until it is committed or rolled back.
func (a *AtomicStore) Checkpoint() {
	a.mu.Lock()
	defer a.mu.Unlock()
	*a.stack = append(*a.stack, newOverlay())
}

// Depth reports how many overlays are currently stacked (always >= 1).
func (a *AtomicStore) Depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(*a.stack)
}

// Get consults overlays top-down before falling through to the backend.
func (a *AtomicStore) Get(k []byte) ([]byte, bool, error) {
	key := a.key(k)
	a.mu.Lock()
	stack := *a.stack
	for i := len(stack) - 1; i >= 0; i-- {
		ov := stack[i]
		if _, deleted := ov.deletes[string(key)]; deleted {
			a.mu.Unlock()
			return nil, false, nil
		}
		if v, ok := ov.writes[string(key)]; ok {
			a.mu.Unlock()
			out := make([]byte, len(v))
			copy(out, v)
			return out, true, nil
		}
	}
	a.mu.Unlock()
	return a.backend.Get(key)
}

// Put writes to the top overlay.
func (a *AtomicStore) Put(k, v []byte) {
	key := a.key(k)
	a.mu.Lock()
	defer a.mu.Unlock()
	top := (*a.stack)[len(*a.stack)-1]
	delete(top.deletes, string(key))
	val := make([]byte, len(v))
	copy(val, v)
	top.writes[string(key)] = val
}

// Delete records a deletion on the top overlay.
func (a *AtomicStore) Delete(k []byte) {
	key := a.key(k)
	a.mu.Lock()
	defer a.mu.Unlock()
	top := (*a.stack)[len(*a.stack)-1]
	delete(top.writes, string(key))
	top.deletes[string(key)] = struct{}{}
}

// ScanPrefix merges overlay state on top of a backend prefix scan. Overlay
// writes/deletes shadow backend entries with the same key.
func (a *AtomicStore) ScanPrefix(prefix []byte) ([]Entry, error) {
	key := a.key(prefix)
	base, err := a.backend.ScanPrefix(key)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]byte, len(base))
	for _, e := range base {
		merged[string(e.Key)] = e.Value
	}
	a.mu.Lock()
	stack := *a.stack
	for _, ov := range stack {
		for k, v := range ov.writes {
			if len(k) >= len(key) && k[:len(key)] == string(key) {
				merged[k] = v
			}
		}
		for k := range ov.deletes {
			delete(merged, k)
		}
	}
	a.mu.Unlock()
	out := make([]Entry, 0, len(merged))
	for k, v := range merged {
		out = append(out, Entry{Key: []byte(k), Value: v})
	}
	return out, nil
}

// Commit either flushes the top overlay down into the next one (nested
// commit) or, when only one overlay remains, writes it through to the
// backend in one batch (spec.md §4.2). No write reaches the backend until
// the outermost commit.
func (a *AtomicStore) Commit() error {
	a.mu.Lock()
	stack := *a.stack
	if len(stack) == 0 {
		a.mu.Unlock()
		return nil
	}
	top := stack[len(stack)-1]
	if len(stack) == 1 {
		batch := a.backend.CreateBatch()
		for k, v := range top.writes {
			batch.Put([]byte(k), v)
		}
		for k := range top.deletes {
			batch.Delete([]byte(k))
		}
		a.mu.Unlock()
		if err := a.backend.Write(batch); err != nil {
			return err
		}
		a.mu.Lock()
		*a.stack = []*overlay{newOverlay()}
		a.mu.Unlock()
		return nil
	}
	parent := stack[len(stack)-2]
	for k := range top.deletes {
		delete(parent.writes, k)
		parent.deletes[k] = struct{}{}
	}
	for k, v := range top.writes {
		delete(parent.deletes, k)
		parent.writes[k] = v
	}
	*a.stack = stack[:len(stack)-1]
	a.mu.Unlock()
	return nil
}

// Rollback discards the top overlay, undoing only the work done since the
// matching Checkpoint call.
func (a *AtomicStore) Rollback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	stack := *a.stack
	if len(stack) <= 1 {
		*a.stack = []*overlay{newOverlay()}
		return
	}
	*a.stack = stack[:len(stack)-1]
}

// TopOverlayKeys returns every key (already length-prefixed/namespaced,
// exactly as stored) written or deleted on the top overlay frame. Used by
// the indexer driver to build a per-height undo journal before merging a
// block's checkpoint down (spec.md §4.9 "Reorg" needs to restore every
// subsystem's state, not just its own bookkeeping, to a past height).
func (a *AtomicStore) TopOverlayKeys() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	stack := *a.stack
	top := stack[len(stack)-1]
	out := make([][]byte, 0, len(top.writes)+len(top.deletes))
	for k := range top.writes {
		out = append(out, []byte(k))
	}
	for k := range top.deletes {
		out = append(out, []byte(k))
	}
	return out
}

// GetBeneath reads k as it stood before the top overlay frame's writes,
// i.e. it consults every overlay below the top one and then the backend.
// Paired with TopOverlayKeys to capture each key's pre-image for an undo
// journal entry; keys passed here are expected already in stored form
// (as returned by TopOverlayKeys), not logical keys needing a.key().
func (a *AtomicStore) GetBeneath(key []byte) ([]byte, bool, error) {
	a.mu.Lock()
	stack := *a.stack
	for i := len(stack) - 2; i >= 0; i-- {
		ov := stack[i]
		if _, deleted := ov.deletes[string(key)]; deleted {
			a.mu.Unlock()
			return nil, false, nil
		}
		if v, ok := ov.writes[string(key)]; ok {
			a.mu.Unlock()
			out := make([]byte, len(v))
			copy(out, v)
			return out, true, nil
		}
	}
	a.mu.Unlock()
	return a.backend.Get(key)
}

// PutRaw and DeleteRaw operate on already-stored-form keys (as returned by
// TopOverlayKeys), bypassing the a.key() prefix step Put/Delete apply to
// logical keys. Used only to replay an undo journal entry verbatim.
func (a *AtomicStore) PutRaw(key, v []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	top := (*a.stack)[len(*a.stack)-1]
	delete(top.deletes, string(key))
	val := make([]byte, len(v))
	copy(val, v)
	top.writes[string(key)] = val
}

// DeleteRaw is PutRaw's counterpart for removing an already-stored-form
// key, see PutRaw.
func (a *AtomicStore) DeleteRaw(key []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	top := (*a.stack)[len(*a.stack)-1]
	delete(top.writes, string(key))
	top.deletes[string(key)] = struct{}{}
}

// Derive returns a cheap handle sharing this store's overlay stack but
// addressing keys under an additional sub-prefix, so a VM host can hand a
// child call frame a store scoped to its own alkane id without copying any
// state (spec.md §4.2, §4.7).
func (a *AtomicStore) Derive(subPrefix []byte) *AtomicStore {
	newPrefix := make([]byte, 0, len(a.prefix)+len(subPrefix))
	newPrefix = append(newPrefix, a.prefix...)
	newPrefix = append(newPrefix, subPrefix...)
	return &AtomicStore{mu: a.mu, backend: a.backend, stack: a.stack, prefix: newPrefix}
}

// DeepCopy returns a new store with its own independent copy of the overlay
// stack (but the same backend), used by the preview engine so a speculative
// block never mutates the real in-flight overlay (spec.md §4.10, Design
// Notes "Preview isolation").
func (a *AtomicStore) DeepCopy() *AtomicStore {
	a.mu.Lock()
	defer a.mu.Unlock()
	stack := *a.stack
	cp := make([]*overlay, len(stack))
	for i, ov := range stack {
		n := newOverlay()
		for k, v := range ov.writes {
			vv := make([]byte, len(v))
			copy(vv, v)
			n.writes[k] = vv
		}
		for k := range ov.deletes {
			n.deletes[k] = struct{}{}
		}
		cp[i] = n
	}
	return &AtomicStore{mu: &sync.Mutex{}, backend: a.backend, stack: &cp, prefix: append([]byte(nil), a.prefix...)}
}
