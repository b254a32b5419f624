// Package view implements the C9 view/preview engine (spec.md §4.10): a
// read-only re-entry into indexed state at an arbitrary past height, and a
// speculative re-entry that first indexes a not-yet-broadcast block onto a
// throwaway overlay. Grounded on the teacher's core/virtual_machine.go
// StaticCall path (a call whose host state forbids writes), generalized
// from "forbid writes this call" to "run against a store no commit ever
// reaches".
package view

import (
	"fmt"

	"alkanes/internal/callctx"
	"alkanes/internal/indexer"
	"alkanes/internal/kv"
	"alkanes/internal/smt"
	"alkanes/internal/vm"
	"alkanes/pkg/alkanes"
)

// Call is one view invocation: the alkane to run, which of its exports to
// invoke, and the raw input bytes handed to it as calldata (spec.md §6
// "execute_view(call) -> {data}").
type Call struct {
	Target alkanes.AlkaneId
	Export string
	Input  []byte
	Height uint32
}

// Engine answers View and Preview queries against a production driver's
// subsystems without ever mutating them.
type Engine struct {
	tree   *smt.Tree
	host   *vm.Host
	driver *indexer.Driver
}

// New builds a view Engine sharing the tree and VM host with the
// production indexer, plus the Driver itself (View reads through its
// Store; Preview also uses it to replay a candidate block through the C7
// state machine before querying it).
func New(tree *smt.Tree, host *vm.Host, driver *indexer.Driver) *Engine {
	return &Engine{tree: tree, host: host, driver: driver}
}

// View instantiates call.Target's deployed bytecode and invokes
// call.Export, after checking that this indexer has committed at least
// one block at or below call.Height (spec.md §4.10 "View"). Guest contract storage in
// this implementation is versioned only through the balance-sheet SMT, not
// per-key at every height (see DESIGN.md, "View historical-read scope"),
// so a view at a past height still reads live guest storage. Balance
// reads (the __balance host call) are the exception: they go through the
// SMT's own per-height root history, so __balance sees the sheet as it
// stood at call.Height rather than the live sheet. No write the guest
// makes is ever committed: the call always runs with vm.KindStaticcall
// against the production store directly.
func (e *Engine) View(call Call) ([]byte, error) {
	if _, ok, err := e.tree.RootAt(call.Height); err != nil {
		return nil, fmt.Errorf("view: root at height %d: %w", call.Height, err)
	} else if !ok {
		return nil, fmt.Errorf("view: no committed root at height %d", call.Height)
	}

	return e.invoke(call, e.driver.Store, e.tree)
}

// Preview deep-copies the production overlay stack, indexes blockBytes
// onto that throwaway copy via the same C7 state machine View builds on,
// and then invokes call.Export against the result — all without the
// production backend ever observing the speculative block (spec.md §4.10
// "Preview", Design Notes "Preview isolation").
func (e *Engine) Preview(call Call, blockBytes []byte, blockHash [32]byte) ([]byte, error) {
	shadowStore := e.driver.Store.DeepCopy()
	shadowTree := smt.New(shadowStore, "", nil)
	shadowTree.SetRoot(e.tree.Root())

	shadow := e.driver.WithStore(shadowStore, shadowTree)

	if _, err := shadow.ProcessBlockAtomic(call.Height, blockBytes, blockHash); err != nil {
		return nil, fmt.Errorf("view: preview index block at height %d: %w", call.Height, err)
	}

	return e.invoke(call, shadowStore, shadowTree)
}

func (e *Engine) invoke(call Call, store *kv.AtomicStore, tree *smt.Tree) ([]byte, error) {
	bc := vm.NewBytecodeStore(store)
	code, ok, err := bc.Get(call.Target)
	if err != nil {
		return nil, fmt.Errorf("view: load bytecode for %s: %w", call.Target, err)
	}
	if !ok {
		return nil, fmt.Errorf("view: no bytecode deployed at %s", call.Target)
	}

	parcel := callctx.Parcel{
		Ctx:      callctx.Context{Myself: call.Target, Inputs: call.Input},
		Height:   call.Height,
		Store:    store,
		Calldata: call.Input,
	}
	req := &vm.CallRequest{
		Target:         call.Target,
		Bytecode:       code,
		Parcel:         parcel,
		Tank:           vm.NewTank(viewFuelCeiling),
		Height:         call.Height,
		Kind:           vm.KindStaticcall,
		PinnedBalances: tree,
	}
	result, err := e.host.ExecuteExport(req, call.Export, false)
	if err != nil {
		return nil, fmt.Errorf("view: execute %s on %s: %w", call.Export, call.Target, err)
	}
	if result.Status != vm.StatusOK {
		return nil, fmt.Errorf("view: %s on %s reverted: %s", call.Export, call.Target, result.Trap)
	}
	return result.ReturnData, nil
}

// viewFuelCeiling bounds a view/preview call independent of any block's
// fuel budget, since views never appear in a block (spec.md §4.10 views
// "run outside of consensus").
const viewFuelCeiling = 10_000_000
