package storeadapter

import (
	"testing"

	"alkanes/internal/kv"
)

func TestIndexedHeightRoundTrip(t *testing.T) {
	a := New(kv.NewMemBackend())

	got, err := a.GetIndexedHeight()
	if err != nil {
		t.Fatalf("get indexed height: %v", err)
	}
	if got != 0 {
		t.Fatalf("got %d, want 0 for an unset height", got)
	}

	if err := a.SetIndexedHeight(42); err != nil {
		t.Fatalf("set indexed height: %v", err)
	}
	got, err = a.GetIndexedHeight()
	if err != nil {
		t.Fatalf("get indexed height: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestBlockHashRoundTrip(t *testing.T) {
	a := New(kv.NewMemBackend())
	var hash [32]byte
	hash[0] = 0xAB

	if err := a.StoreBlockHash(10, hash); err != nil {
		t.Fatalf("store block hash: %v", err)
	}

	gotHash, ok, err := a.GetBlockHash(10)
	if err != nil || !ok {
		t.Fatalf("get block hash: ok=%v err=%v", ok, err)
	}
	if gotHash != hash {
		t.Fatalf("got hash %x, want %x", gotHash, hash)
	}
}

func TestRollbackToHeightDiscardsLaterRecords(t *testing.T) {
	a := New(kv.NewMemBackend())
	for h := uint32(1); h <= 5; h++ {
		var hash [32]byte
		hash[0] = byte(h)
		if err := a.StoreBlockHash(h, hash); err != nil {
			t.Fatalf("store block hash at %d: %v", h, err)
		}
	}
	if err := a.SetIndexedHeight(5); err != nil {
		t.Fatalf("set indexed height: %v", err)
	}

	if err := a.RollbackToHeight(2); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	height, err := a.GetIndexedHeight()
	if err != nil {
		t.Fatalf("get indexed height: %v", err)
	}
	if height != 2 {
		t.Fatalf("got indexed height %d, want 2", height)
	}
	if _, ok, _ := a.GetBlockHash(3); ok {
		t.Fatalf("expected block hash at height 3 to be discarded")
	}
	if _, ok, _ := a.GetBlockHash(2); !ok {
		t.Fatalf("expected block hash at height 2 to survive rollback")
	}
}

func TestIsAvailable(t *testing.T) {
	a := New(kv.NewMemBackend())
	if !a.IsAvailable() {
		t.Fatalf("expected a fresh mem backend to report available")
	}
}
