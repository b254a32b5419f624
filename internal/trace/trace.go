// Package trace implements the per-transaction trace event ring buffer
// (spec.md §3 "Trace event", §4.6 call semantics). Grounded on the
// teacher's append-only audit/event-log idiom in core/audit_node.go and
// core/replication.go (a bounded slice guarded by a mutex, oldest entries
// evicted once the cap is hit).
package trace

import (
	"sync"

	"alkanes/internal/callctx"
	"alkanes/pkg/alkanes"
)

// EventKind tags which variant of TraceEvent a record holds (spec.md §3's
// tagged sum: ReceiveIntent, ValueTransfer, EnterCall, EnterStaticcall,
// EnterDelegatecall, ReturnContext, RevertContext, CreateAlkane).
type EventKind int

const (
	ReceiveIntent EventKind = iota
	ValueTransfer
	EnterCall
	EnterStaticcall
	EnterDelegatecall
	ReturnContext
	RevertContext
	CreateAlkane
)

func (k EventKind) String() string {
	switch k {
	case ReceiveIntent:
		return "ReceiveIntent"
	case ValueTransfer:
		return "ValueTransfer"
	case EnterCall:
		return "EnterCall"
	case EnterStaticcall:
		return "EnterStaticcall"
	case EnterDelegatecall:
		return "EnterDelegatecall"
	case ReturnContext:
		return "ReturnContext"
	case RevertContext:
		return "RevertContext"
	case CreateAlkane:
		return "CreateAlkane"
	default:
		return "Unknown"
	}
}

// Event is one trace record. Only the fields relevant to Kind are
// populated; this mirrors a tagged union without needing a type switch at
// every call site.
type Event struct {
	Kind      EventKind
	Incoming  []callctx.IncomingAlkane
	Transfers []alkanes.Edict
	RedirectTo uint32
	Ctx       *callctx.Context
	RespData  []byte
	RespOK    bool
	CreatedID alkanes.AlkaneId
}

// outpointKey identifies the (txid, vout) a trace belongs to.
type outpointKey struct {
	Txid [32]byte
	Vout uint32
}

// Buffer is a bounded, append-only ring of trace events, retrievable by
// outpoint or by block height (spec.md §3). It is not part of consensus
// state: it lives only for as long as the process retains it.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	byHeight map[uint32][]Event
	byOutpt  map[outpointKey][]Event
	heights  []uint32
}

// NewBuffer returns a trace buffer retaining events for at most capacity
// distinct block heights, evicting the oldest height once the cap is hit.
// Eviction applies to the by-height index only: an evicted height's
// events stay retrievable through ForOutpoint.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		capacity: capacity,
		byHeight: make(map[uint32][]Event),
		byOutpt:  make(map[outpointKey][]Event),
	}
}

// Append records ev under height and under the given outpoint.
func (b *Buffer) Append(height uint32, txid [32]byte, vout uint32, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byHeight[height]; !ok {
		b.heights = append(b.heights, height)
		if b.capacity > 0 && len(b.heights) > b.capacity {
			oldest := b.heights[0]
			b.heights = b.heights[1:]
			delete(b.byHeight, oldest)
		}
	}
	b.byHeight[height] = append(b.byHeight[height], ev)
	key := outpointKey{Txid: txid, Vout: vout}
	b.byOutpt[key] = append(b.byOutpt[key], ev)
}

// ForHeight returns every event recorded for height, oldest first.
func (b *Buffer) ForHeight(height uint32) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.byHeight[height]...)
}

// ForOutpoint returns every event recorded for the given (txid, vout).
func (b *Buffer) ForOutpoint(txid [32]byte, vout uint32) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.byOutpt[outpointKey{Txid: txid, Vout: vout}]...)
}
