package balance

import (
	"encoding/hex"
	"fmt"
	"sync"

	"alkanes/internal/kv"
	"alkanes/pkg/alkanes"
)

// PointerSheet is a balance sheet whose reads fall through to a keyed
// location under an atomic-store derivation (spec.md §4.4): the first Get
// for an id loads its stored value and caches it; every write lands in the
// in-memory cache only, to be flushed explicitly by the caller (typically
// the indexer driver at the end of a protomessage). This is the storage
// side of the balance-sheet-at-an-outpoint pattern (spec.md §3).
type PointerSheet struct {
	mu     sync.Mutex
	store  *kv.AtomicStore
	label  string
	cache  map[alkanes.RuneId]alkanes.U128
	loaded map[alkanes.RuneId]bool
}

// NewPointerSheet returns a sheet backed by store, storing each id's balance
// under a key scoped by label (typically an outpoint's wire encoding).
func NewPointerSheet(store *kv.AtomicStore, label string) *PointerSheet {
	return &PointerSheet{
		store:  store,
		label:  label,
		cache:  make(map[alkanes.RuneId]alkanes.U128),
		loaded: make(map[alkanes.RuneId]bool),
	}
}

// OutpointSheet returns the PointerSheet holding the balances sitting at the
// outpoint-like address addr (spec.md §4.6 "__balance"): the VM host and
// the indexer driver both address outpoint balance sheets this way, so the
// label scheme lives here rather than being duplicated per caller.
func OutpointSheet(store *kv.AtomicStore, addr []byte) *PointerSheet {
	return NewPointerSheet(store, "/balance/"+hex.EncodeToString(addr))
}

// runeIdBytes32 serializes a RuneId as two 16-byte big-endian words, matching
// AlkaneId.Bytes32's wire layout.
func runeIdBytes32(id alkanes.RuneId) []byte {
	b := id.Block.Bytes16BE()
	t := id.Tx.Bytes16BE()
	out := make([]byte, 32)
	copy(out[:16], b[:])
	copy(out[16:], t[:])
	return out
}

// Get loads and caches id's balance on first access, returning the cached
// value on every later call.
func (p *PointerSheet) Get(id alkanes.RuneId) (alkanes.U128, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded[id] {
		return p.cache[id], nil
	}
	raw, ok, err := p.store.Get(kv.Namespace(p.label, runeIdBytes32(id)))
	if err != nil {
		return alkanes.U128{}, fmt.Errorf("balance: pointer sheet get %s: %w", id, err)
	}
	v := alkanes.ZeroU128
	if ok {
		v, err = alkanes.U128FromBytesBE(raw)
		if err != nil {
			return alkanes.U128{}, fmt.Errorf("balance: pointer sheet get %s: %w", id, err)
		}
	}
	p.cache[id] = v
	p.loaded[id] = true
	return v, nil
}

// Set overwrites id's cached balance.
func (p *PointerSheet) Set(id alkanes.RuneId, v alkanes.U128) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[id] = v
	p.loaded[id] = true
}

// Increase loads then adds, failing on overflow.
func (p *PointerSheet) Increase(id alkanes.RuneId, v alkanes.U128) error {
	cur, err := p.Get(id)
	if err != nil {
		return err
	}
	next, err := cur.Add(v)
	if err != nil {
		return fmt.Errorf("balance: pointer sheet increase %s: %w", id, err)
	}
	p.Set(id, next)
	return nil
}

// Decrease loads then subtracts, failing on underflow.
func (p *PointerSheet) Decrease(id alkanes.RuneId, v alkanes.U128) error {
	cur, err := p.Get(id)
	if err != nil {
		return err
	}
	next, err := cur.Sub(v)
	if err != nil {
		return fmt.Errorf("balance: pointer sheet decrease %s: %w", id, err)
	}
	p.Set(id, next)
	return nil
}

// Flush writes every cached (loaded) entry to the underlying atomic store,
// regardless of whether it was actually mutated; an unmodified entry is
// simply written back with the value it already had. Zero-valued entries
// are deleted from the store instead of written.
func (p *PointerSheet) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, v := range p.cache {
		key := kv.Namespace(p.label, runeIdBytes32(id))
		if v.IsZero() {
			p.store.Delete(key)
			continue
		}
		b := v.Bytes16BE()
		p.store.Put(key, b[:])
	}
}

// LoadAll scans the underlying store for every entry ever written under
// this sheet's label and caches them, so a subsequent ToSheet (or ranging
// Get) sees balances nothing has touched via Get/Set yet this run — needed
// wherever a caller wants "everything sitting at this outpoint" rather than
// one asset at a time (spec.md §3 "balance sheet at an outpoint").
func (p *PointerSheet) LoadAll() error {
	prefix := kv.Namespace(p.label, nil)
	entries, err := p.store.ScanPrefix(prefix)
	if err != nil {
		return fmt.Errorf("balance: pointer sheet load all: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if len(e.Key) < len(prefix)+32 {
			continue
		}
		suffix := e.Key[len(e.Key)-32:]
		block, err := alkanes.U128FromBytesBE(suffix[:16])
		if err != nil {
			continue
		}
		tx, err := alkanes.U128FromBytesBE(suffix[16:])
		if err != nil {
			continue
		}
		id := alkanes.RuneId{Block: block, Tx: tx}
		if p.loaded[id] {
			continue
		}
		v, err := alkanes.U128FromBytesBE(e.Value)
		if err != nil {
			continue
		}
		p.cache[id] = v
		p.loaded[id] = true
	}
	return nil
}

// ToSheet materializes every entry stored under this sheet's label (after
// loading them via LoadAll) into a plain Sheet, e.g. to pass through
// Debit/Pipe/Merge.
func (p *PointerSheet) ToSheet() *Sheet {
	_ = p.LoadAll()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := New()
	for id, v := range p.cache {
		out.Set(id, v)
	}
	return out
}
