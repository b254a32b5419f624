package rpcserver

import (
	"encoding/json"
	"testing"

	"alkanes/internal/indexer"
	"alkanes/internal/kv"
	"alkanes/internal/runtime"
)

func TestParseViewNameRoundTrip(t *testing.T) {
	id, export, ok := splitViewName("2:5/get_balance")
	if !ok {
		t.Fatalf("expected a valid view name to parse")
	}
	if id.Block.Uint64() != 2 || id.Tx.Uint64() != 5 {
		t.Fatalf("got id %s, want 2:5", id)
	}
	if export != "get_balance" {
		t.Fatalf("got export %q, want get_balance", export)
	}
}

func TestParseViewNameRejectsMalformed(t *testing.T) {
	if _, _, ok := splitViewName("not-a-view-name"); ok {
		t.Fatalf("expected malformed name to be rejected")
	}
}

func TestMetashrewHeightReportsIndexedHeight(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	driver := indexer.NewDriver(store, 16, false, 1000)
	rt := runtime.New(driver)
	s := New(rt, func() (uint32, error) { return 42, nil })

	got, rpcErr := s.MetashrewHeight()
	if rpcErr != nil {
		t.Fatalf("unexpected rpc error: %v", rpcErr)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestResolveHeightRejectsUnknownString(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	driver := indexer.NewDriver(store, 16, false, 1000)
	rt := runtime.New(driver)
	s := New(rt, func() (uint32, error) { return 1, nil })

	raw, _ := json.Marshal("soonest")
	if _, rpcErr := s.resolveHeight(raw); rpcErr == nil {
		t.Fatalf("expected invalid params error")
	} else if rpcErr.Code != codeInvalidParams {
		t.Fatalf("got code %d, want %d", rpcErr.Code, codeInvalidParams)
	}
}
