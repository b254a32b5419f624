package vm

import (
	"testing"

	"alkanes/internal/kv"
	"alkanes/pkg/alkanes"
)

func TestBytecodeStoreRoundTrip(t *testing.T) {
	bc := NewBytecodeStore(kv.NewAtomicStore(kv.NewMemBackend()))
	id := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(3)}

	if _, ok, err := bc.Get(id); err != nil || ok {
		t.Fatalf("expected absent bytecode, ok=%v err=%v", ok, err)
	}
	if err := bc.Put(id, []byte{0x00, 0x61, 0x73, 0x6d}); err != nil {
		t.Fatalf("put: %v", err)
	}
	code, ok, err := bc.Get(id)
	if err != nil || !ok {
		t.Fatalf("expected bytecode present, ok=%v err=%v", ok, err)
	}
	if string(code) != "\x00asm" {
		t.Fatalf("unexpected bytecode: %x", code)
	}
}

func TestBytecodeStoreRejectsEmpty(t *testing.T) {
	bc := NewBytecodeStore(kv.NewAtomicStore(kv.NewMemBackend()))
	id := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(4)}
	if err := bc.Put(id, nil); err == nil {
		t.Fatalf("expected error storing empty bytecode")
	}
}

func TestModuleCacheEviction(t *testing.T) {
	c := NewModuleCache(2)
	a := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(1)}
	b := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(2)}
	c.Put(a, nil)
	c.Put(b, nil)
	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	c.Remove(a)
	if _, ok := c.Get(a); ok {
		t.Fatalf("expected a removed")
	}
}
