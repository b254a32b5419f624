package smt

import (
	"bytes"
	"testing"

	"alkanes/internal/kv"
)

func newTestTree() *Tree {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	return New(store, "", NewCache(64))
}

func TestTreeEmptyRootIsZero(t *testing.T) {
	tr := newTestTree()
	if tr.Root() != EmptyHash {
		t.Fatalf("fresh tree root = %x, want all-zero", tr.Root())
	}
}

func TestTreePutGetRoundTrip(t *testing.T) {
	tr := newTestTree()
	if err := tr.Put([]byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tr.Put([]byte("beta"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := tr.Get([]byte("alpha"))
	if err != nil || !ok {
		t.Fatalf("get alpha: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(v, []byte("one")) {
		t.Fatalf("get alpha = %q, want %q", v, "one")
	}
	if _, ok, _ := tr.Get([]byte("gamma")); ok {
		t.Fatalf("get gamma: expected miss")
	}
}

func TestTreeDeleteRestoresEmptyRoot(t *testing.T) {
	tr := newTestTree()
	if err := tr.Put([]byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tr.Delete([]byte("alpha")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tr.Root() != EmptyHash {
		t.Fatalf("root after deleting only key = %x, want all-zero", tr.Root())
	}
	if _, ok, _ := tr.Get([]byte("alpha")); ok {
		t.Fatalf("get alpha after delete: expected miss")
	}
}

func TestTreeUpdateChangesRoot(t *testing.T) {
	tr := newTestTree()
	if err := tr.Put([]byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	r1 := tr.Root()
	if err := tr.Put([]byte("alpha"), []byte("two")); err != nil {
		t.Fatalf("put: %v", err)
	}
	r2 := tr.Root()
	if r1 == r2 {
		t.Fatalf("root did not change after updating value")
	}
	v, ok, err := tr.Get([]byte("alpha"))
	if err != nil || !ok || !bytes.Equal(v, []byte("two")) {
		t.Fatalf("get alpha after update = %q ok=%v err=%v", v, ok, err)
	}
}

func TestTreeHistoricalReadsSurviveLaterUpdates(t *testing.T) {
	tr := newTestTree()
	if err := tr.Put([]byte("alpha"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tr.CommitHeight(10); err != nil {
		t.Fatalf("commit height 10: %v", err)
	}
	if err := tr.Put([]byte("alpha"), []byte("v2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tr.CommitHeight(20); err != nil {
		t.Fatalf("commit height 20: %v", err)
	}

	v, ok, err := tr.GetAt([]byte("alpha"), 10)
	if err != nil || !ok || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("get at height 10 = %q ok=%v err=%v, want v1", v, ok, err)
	}
	v, ok, err = tr.GetAt([]byte("alpha"), 15)
	if err != nil || !ok || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("get at height 15 (between commits) = %q ok=%v err=%v, want v1", v, ok, err)
	}
	v, ok, err = tr.GetAt([]byte("alpha"), 20)
	if err != nil || !ok || !bytes.Equal(v, []byte("v2")) {
		t.Fatalf("get at height 20 = %q ok=%v err=%v, want v2", v, ok, err)
	}
	if _, ok, _ := tr.GetAt([]byte("alpha"), 5); ok {
		t.Fatalf("get at height 5 (before any commit): expected miss")
	}
}

func TestTreeNamespacesDoNotCollide(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	cache := NewCache(64)
	runes := New(store, "/runes", cache)
	alkanesTree := New(store, "/alkanes", cache)

	if err := runes.Put([]byte("k"), []byte("rune-value")); err != nil {
		t.Fatalf("put runes: %v", err)
	}
	if err := alkanesTree.Put([]byte("k"), []byte("alkane-value")); err != nil {
		t.Fatalf("put alkanes: %v", err)
	}
	if runes.Root() == alkanesTree.Root() {
		t.Fatalf("distinct namespaces produced the same root")
	}
	v, ok, err := runes.Get([]byte("k"))
	if err != nil || !ok || string(v) != "rune-value" {
		t.Fatalf("runes get = %q ok=%v err=%v", v, ok, err)
	}
	v, ok, err = alkanesTree.Get([]byte("k"))
	if err != nil || !ok || string(v) != "alkane-value" {
		t.Fatalf("alkanes get = %q ok=%v err=%v", v, ok, err)
	}
}
