package vm

import (
	"encoding/binary"
	"testing"

	"alkanes/internal/callctx"
	"alkanes/internal/kv"
	"alkanes/internal/trace"
	"alkanes/pkg/alkanes"
)

func TestGuestStorageKeyScopesByAlkane(t *testing.T) {
	a := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(1)}
	b := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(2)}
	key := []byte("counter")
	if string(guestStorageKey(a, key)) == string(guestStorageKey(b, key)) {
		t.Fatalf("two different alkanes must not share a storage key")
	}
}

func TestApplyFlushRejectsWriteUnderStaticcall(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	target := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(9)}
	req := &CallRequest{Target: target, Parcel: callctx.Parcel{Store: store}}
	hs := &hostState{req: req, static: true}

	payload := encodeFlushPayload(t, [][2]string{{"k", "v"}}, nil)
	if _, err := hs.applyFlush(payload); err == nil {
		t.Fatalf("expected staticcall write rejection")
	}
}

func TestApplyFlushAppliesWritesAndReturnsTail(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	target := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(9)}
	req := &CallRequest{Target: target, Parcel: callctx.Parcel{Store: store}}
	hs := &hostState{req: req}

	payload := encodeFlushPayload(t, [][2]string{{"k", "v"}}, []byte("hello"))
	ret, err := hs.applyFlush(payload)
	if err != nil {
		t.Fatalf("applyFlush: %v", err)
	}
	if string(ret) != "hello" {
		t.Fatalf("expected return tail 'hello', got %q", ret)
	}
	v, ok, err := store.Get(guestStorageKey(target, []byte("k")))
	if err != nil || !ok {
		t.Fatalf("expected write to land, ok=%v err=%v", ok, err)
	}
	if string(v) != "v" {
		t.Fatalf("expected value 'v', got %q", v)
	}
}

func TestDecodeTransfersRoundTrip(t *testing.T) {
	id := alkanes.AlkaneId{Block: alkanes.U128FromUint64(2), Tx: alkanes.U128FromUint64(5)}
	amt := alkanes.U128FromUint64(77)

	var buf []byte
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], 1)
	buf = append(buf, count[:]...)
	buf = append(buf, id.Bytes32()...)
	amtBytes := amt.Bytes16BE()
	buf = append(buf, amtBytes[:]...)

	out, err := decodeTransfers(buf)
	if err != nil {
		t.Fatalf("decodeTransfers: %v", err)
	}
	if len(out) != 1 || out[0].Id != id || out[0].Amount.Cmp(amt) != 0 {
		t.Fatalf("unexpected decode result: %+v", out)
	}
}

func TestNewHostCompileAndCacheRoundTrip(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	bc := NewBytecodeStore(store)
	h := NewHost(bc, trace.NewBuffer(16), 4, false)
	if h.modules.Len() != 0 {
		t.Fatalf("expected empty module cache at construction")
	}
}

func encodeFlushPayload(t *testing.T, writes [][2]string, ret []byte) []byte {
	t.Helper()
	var buf []byte
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(writes)))
	buf = append(buf, count[:]...)
	for _, kv := range writes {
		var klen, vlen [4]byte
		binary.BigEndian.PutUint32(klen[:], uint32(len(kv[0])))
		binary.BigEndian.PutUint32(vlen[:], uint32(len(kv[1])))
		buf = append(buf, klen[:]...)
		buf = append(buf, []byte(kv[0])...)
		buf = append(buf, vlen[:]...)
		buf = append(buf, []byte(kv[1])...)
	}
	var retlen [4]byte
	binary.BigEndian.PutUint32(retlen[:], uint32(len(ret)))
	buf = append(buf, retlen[:]...)
	buf = append(buf, ret...)
	return buf
}
