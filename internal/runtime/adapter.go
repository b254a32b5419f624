// Package runtime implements the Runtime adapter contract of spec.md §6:
// the single surface the sync engine (C8) and the JSON-RPC method table
// (rpcserver) both call through, wrapping the C7 indexer driver and the
// C9 view engine behind the operations an external caller actually
// needs. Grounded on the teacher's core/virtual_machine.go VMController,
// which plays the same "one facade in front of several subsystems" role
// for its own HeavyVM/LightVM pair.
package runtime

import (
	"fmt"

	"alkanes/internal/indexer"
	"alkanes/internal/smt"
	"alkanes/internal/view"
	"alkanes/pkg/alkanes"
)

// ProcessResult mirrors spec.md §6's process_block_atomic return shape
// ({state_root, batch_data, h, hash}); BatchData is left empty in this
// implementation (see DESIGN.md, "batch_data scope") since nothing here
// consumes a serialized write-batch independent of the state root.
type ProcessResult struct {
	StateRoot [32]byte
	BatchData []byte
	Height    uint32
	BlockHash [32]byte
}

// Adapter is the Runtime contract of spec.md §6.
type Adapter struct {
	driver *indexer.Driver
	view   *view.Engine
	tree   *smt.Tree
}

// New wires an Adapter around a fully constructed indexer Driver, building
// its own view Engine on top of it.
func New(driver *indexer.Driver) *Adapter {
	return &Adapter{
		driver: driver,
		view:   view.New(driver.Tree, driver.Host, driver),
		tree:   driver.Tree,
	}
}

// ProcessBlockAtomic indexes one block, the sync engine's only write path
// into the runtime (spec.md §6 "process_block_atomic").
func (a *Adapter) ProcessBlockAtomic(height uint32, blockBytes []byte, blockHash [32]byte) (*ProcessResult, error) {
	res, err := a.driver.ProcessBlockAtomic(height, blockBytes, blockHash)
	if err != nil {
		return nil, err
	}
	return &ProcessResult{StateRoot: res.StateRoot, Height: res.Height, BlockHash: res.BlockHash}, nil
}

// ExecuteView answers a read-only query against indexed state at call.Height
// (spec.md §6 "execute_view").
func (a *Adapter) ExecuteView(call view.Call) ([]byte, error) {
	return a.view.View(call)
}

// ExecutePreview answers a read-only query against a speculative block that
// has not been broadcast (spec.md §6 "execute_preview").
func (a *Adapter) ExecutePreview(call view.Call, blockBytes []byte, blockHash [32]byte) ([]byte, error) {
	return a.view.Preview(call, blockBytes, blockHash)
}

// GetStateRoot reports the global SMT root committed at height (spec.md §6
// "get_state_root").
func (a *Adapter) GetStateRoot(height uint32) ([32]byte, error) {
	root, ok, err := a.tree.RootAt(height)
	if err != nil {
		return [32]byte{}, fmt.Errorf("runtime: state root at height %d: %w", height, err)
	}
	if !ok {
		return [32]byte{}, fmt.Errorf("runtime: no committed root at height %d", height)
	}
	return root, nil
}

// GetPrefixRoot reports the root committed at height by the smt.Tree
// namespaced under label (spec.md §6 "get_prefix_root"). The indexer
// driver commits only the global tree (label ""), so no "/runes" or
// "/alkanes" tree has roots and ok is false for those labels.
func (a *Adapter) GetPrefixRoot(label string, height uint32) ([32]byte, bool, error) {
	sub := smt.New(a.driver.Store, label, nil)
	root, ok, err := sub.RootAt(height)
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("runtime: prefix root %q at height %d: %w", label, height, err)
	}
	return root, ok, nil
}

// RefreshMemory drops the VM module cache, forcing every subsequent call to
// recompile its guest from stored bytecode (spec.md §6 "refresh_memory"),
// the operational escape hatch for a module cache suspected stale or
// oversized; matches the teacher's VMController.Reset.
func (a *Adapter) RefreshMemory() {
	a.driver.Host.ResetModuleCache()
}

// DeployedAt reports whether id has bytecode deployed, for callers
// validating a view call's target before invoking it.
func (a *Adapter) DeployedAt(id alkanes.AlkaneId) bool {
	_, ok, err := a.driver.Bytecode.Get(id)
	return err == nil && ok
}

// RollbackToHeight undoes every driver-owned subsystem (the SMT's root/
// heights index, balance sheets, deployed bytecode, the sequence counter)
// back to the state it held right after target was committed (spec.md
// §4.9 "Reorg"). The sync engine calls this in addition to its own
// storage adapter's RollbackToHeight, which only discards that adapter's
// separate block-hash/state-root bookkeeping.
func (a *Adapter) RollbackToHeight(target uint32) error {
	return a.driver.RollbackToHeight(target)
}
