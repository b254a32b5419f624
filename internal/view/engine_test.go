package view

import (
	"testing"

	"alkanes/internal/indexer"
	"alkanes/internal/kv"
	"alkanes/internal/smt"
)

func TestViewRejectsUncommittedHeight(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	tree := smt.New(store, "", smt.NewCache(16))
	driver := indexer.NewDriver(store, 16, false, 1000)
	e := New(tree, driver.Host, driver)

	_, err := e.View(Call{Height: 5})
	if err == nil {
		t.Fatalf("expected error for a height never committed")
	}
}

func TestViewRejectsMissingBytecode(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	tree := smt.New(store, "", smt.NewCache(16))
	if err := tree.CommitHeight(0); err != nil {
		t.Fatalf("commit height: %v", err)
	}
	driver := indexer.NewDriver(store, 16, false, 1000)
	driver.Tree = tree
	e := New(tree, driver.Host, driver)

	_, err := e.View(Call{Height: 0, Export: "view"})
	if err == nil {
		t.Fatalf("expected error for a target with no deployed bytecode")
	}
}
