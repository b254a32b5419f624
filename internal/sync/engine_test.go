package sync

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus"

	"alkanes/internal/indexer"
	"alkanes/internal/kv"
	"alkanes/internal/runtime"
	"alkanes/internal/storeadapter"
)

type fakeNode struct {
	blocks map[uint32][]byte
	hashes map[uint32][32]byte
	tip    uint32
}

func newFakeNode() *fakeNode {
	return &fakeNode{blocks: map[uint32][]byte{}, hashes: map[uint32][32]byte{}}
}

func (f *fakeNode) addBlock(height uint32, blk *wire.MsgBlock) {
	var buf bytes.Buffer
	if err := blk.Serialize(&buf); err != nil {
		panic(err)
	}
	f.blocks[height] = buf.Bytes()
	f.hashes[height] = [32]byte(blk.BlockHash())
	if height > f.tip {
		f.tip = height
	}
}

func (f *fakeNode) GetTipHeight(ctx context.Context) (uint32, error) { return f.tip, nil }
func (f *fakeNode) GetBlockHash(ctx context.Context, h uint32) ([32]byte, error) {
	return f.hashes[h], nil
}
func (f *fakeNode) GetBlockData(ctx context.Context, h uint32) ([]byte, error) {
	return f.blocks[h], nil
}
func (f *fakeNode) GetChainTip(ctx context.Context) (uint32, [32]byte, error) {
	return f.tip, f.hashes[f.tip], nil
}
func (f *fakeNode) IsConnected(ctx context.Context) bool { return true }

func newFakeStorage() storeadapter.StorageAdapter {
	return storeadapter.New(kv.NewMemBackend())
}

func TestStepIndexesNextBlockAndAdvancesHeight(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	driver := indexer.NewDriver(store, 16, false, 1000)
	rt := runtime.New(driver)

	node := newFakeNode()
	var zero chainhash.Hash
	genesis := wire.NewMsgBlock(wire.NewBlockHeader(0, &zero, &zero, 0, 0))
	node.addBlock(0, genesis)
	genesisHash := genesis.BlockHash()
	next := wire.NewMsgBlock(wire.NewBlockHeader(0, &genesisHash, &zero, 0, 0))
	node.addBlock(1, next)

	adapter := newFakeStorage()
	if err := adapter.StoreBlockHash(0, [32]byte(genesisHash)); err != nil {
		t.Fatalf("seed genesis hash: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	e := New(node, adapter, rt, time.Millisecond, metrics)

	if err := e.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	height, err := adapter.GetIndexedHeight()
	if err != nil {
		t.Fatalf("get indexed height: %v", err)
	}
	if height != 1 {
		t.Fatalf("got indexed height %d, want 1", height)
	}
}

// TestReorgThenReindexConvergesOnCanonicalChain drives the engine down one
// chain, forces a reorg onto a longer divergent chain, and checks that
// re-indexing the new chain converges: the indexed height and SMT state
// root end up reflecting chain B everywhere, with no leftover chain-A root
// at a height chain B also committed (spec.md §4.9 "Reorg at depth 1, 10,
// 100: all converge to the canonical chain's state").
func TestReorgThenReindexConvergesOnCanonicalChain(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	driver := indexer.NewDriver(store, 16, false, 1000)
	rt := runtime.New(driver)

	node := newFakeNode()
	var zero chainhash.Hash
	genesis := wire.NewMsgBlock(wire.NewBlockHeader(0, &zero, &zero, 0, 0))
	node.addBlock(0, genesis)
	genesisHash := genesis.BlockHash()

	a1 := wire.NewMsgBlock(wire.NewBlockHeader(0, &genesisHash, &zero, 0, 1))
	node.addBlock(1, a1)
	a1Hash := a1.BlockHash()
	a2 := wire.NewMsgBlock(wire.NewBlockHeader(0, &a1Hash, &zero, 0, 2))
	node.addBlock(2, a2)

	adapter := newFakeStorage()
	if err := adapter.StoreBlockHash(0, [32]byte(genesisHash)); err != nil {
		t.Fatalf("seed genesis hash: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	e := New(node, adapter, rt, time.Millisecond, metrics)

	for h := uint32(1); h <= 2; h++ {
		if err := e.step(context.Background()); err != nil {
			t.Fatalf("step to height %d: %v", h, err)
		}
	}

	// Chain B diverges at height 1 and runs one block longer than chain A,
	// so the node's reported tip now sits past what was indexed.
	b1 := wire.NewMsgBlock(wire.NewBlockHeader(0, &genesisHash, &zero, 0, 11))
	node.addBlock(1, b1)
	b1Hash := b1.BlockHash()
	b2 := wire.NewMsgBlock(wire.NewBlockHeader(0, &b1Hash, &zero, 0, 12))
	node.addBlock(2, b2)
	b2Hash := b2.BlockHash()
	b3 := wire.NewMsgBlock(wire.NewBlockHeader(0, &b2Hash, &zero, 0, 13))
	node.addBlock(3, b3)

	const maxSteps = 10
	for i := 0; i < maxSteps; i++ {
		height, err := adapter.GetIndexedHeight()
		if err != nil {
			t.Fatalf("get indexed height: %v", err)
		}
		if height == node.tip {
			break
		}
		if err := e.step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	finalHeight, err := adapter.GetIndexedHeight()
	if err != nil {
		t.Fatalf("get indexed height: %v", err)
	}
	if finalHeight != node.tip {
		t.Fatalf("got indexed height %d, want to converge on tip %d", finalHeight, node.tip)
	}

	wantHashes := map[uint32][32]byte{1: [32]byte(b1Hash), 2: [32]byte(b2Hash), 3: [32]byte(b3.BlockHash())}
	for h, want := range wantHashes {
		got, ok, err := adapter.GetBlockHash(h)
		if err != nil || !ok {
			t.Fatalf("get block hash at height %d: ok=%v err=%v", h, ok, err)
		}
		if got != want {
			t.Fatalf("height %d: got hash %x, want chain B hash %x", h, got, want)
		}
	}

	for h := uint32(1); h <= finalHeight; h++ {
		if _, err := rt.GetStateRoot(h); err != nil {
			t.Fatalf("state root at height %d after reindex: %v", h, err)
		}
	}
}

func TestStepSleepsWhenCaughtUp(t *testing.T) {
	store := kv.NewAtomicStore(kv.NewMemBackend())
	driver := indexer.NewDriver(store, 16, false, 1000)
	rt := runtime.New(driver)

	node := newFakeNode()
	adapter := newFakeStorage()
	if err := adapter.SetIndexedHeight(0); err != nil {
		t.Fatalf("set indexed height: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	e := New(node, adapter, rt, time.Millisecond, metrics)

	if err := e.step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
}
