// Package indexer implements the C7 block-processing state machine
// (spec.md §4.8): the only component that turns parsed transactions into
// committed state. Grounded on the teacher's core/ledger.go applyBlock
// (WAL-replay-then-apply, one block fully committed or not at all),
// generalized from a simple balance ledger to the full
// runestone/protoburn/protomessage pipeline spec.md describes.
package indexer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"alkanes/internal/balance"
	"alkanes/internal/callctx"
	"alkanes/internal/errs"
	"alkanes/internal/kv"
	"alkanes/internal/protostone"
	"alkanes/internal/smt"
	"alkanes/internal/trace"
	"alkanes/internal/vm"
	"alkanes/pkg/alkanes"
)

var (
	tipHeightKey = []byte("__INTERNAL/tip-height")
)

func blockHashKey(height uint32) []byte {
	return []byte(fmt.Sprintf("__INTERNAL/block-hash/%d", height))
}

// Driver owns every piece of mutable state one indexer process needs:
// the atomic store, the SMT tracking the versioned root, the bytecode
// table and VM host, the sequence counter and the trace buffer.
type Driver struct {
	Store    *kv.AtomicStore
	Tree     *smt.Tree
	Bytecode *vm.BytecodeStore
	Host     *vm.Host
	Sequence *vm.Sequence
	Trace    *trace.Buffer

	// FuelConstant is the protocol constant ComputeBlockFuel divides by a
	// block's virtual size (spec.md §4.6 "Fuel metering").
	FuelConstant uint64

	log *logrus.Entry
}

// NewDriver wires a Driver's subsystems together, grounded on the
// teacher's NewLedger constructor shape (open/derive every subsystem up
// front, fail fast on misconfiguration).
func NewDriver(store *kv.AtomicStore, modCacheSize int, disableModCache bool, fuelConstant uint64) *Driver {
	bc := vm.NewBytecodeStore(store)
	tr := trace.NewBuffer(4096)
	return &Driver{
		Store:        store,
		Tree:         smt.New(store, "", smt.NewCache(4096)),
		Bytecode:     bc,
		Host:         vm.NewHost(bc, tr, modCacheSize, disableModCache),
		Sequence:     vm.NewSequence(store),
		Trace:        tr,
		FuelConstant: fuelConstant,
		log:          logrus.WithField("component", "indexer"),
	}
}

// ProcessResult is what ProcessBlockAtomic returns: the state_root, h and
// hash fields of the Runtime adapter contract of spec.md §6
// ("process_block_atomic(h, bytes, hash) -> {state_root, batch_data, h,
// hash}"). It has no batch_data; runtime.ProcessResult adds that field,
// always empty.
type ProcessResult struct {
	Height    uint32
	BlockHash [32]byte
	StateRoot [32]byte
}

// ProcessBlockAtomic decodes and indexes one block, committing all of its
// effects in a single atomic-store checkpoint: either every transaction's
// effects land, or (on any block-level failure) none do (spec.md §4.8,
// §7 "Storage I/O ... block fails atomically, sync retries"). Before
// committing, it also records an undo journal entry for every key the
// block touched (across the SMT, balance sheets, deployed bytecode and
// the sequence counter alike), so a later RollbackToHeight can restore
// every subsystem, not just the block-hash/state-root bookkeeping kept
// outside the driver.
func (d *Driver) ProcessBlockAtomic(height uint32, blockBytes []byte, blockHash [32]byte) (*ProcessResult, error) {
	d.Store.Checkpoint()
	root, err := d.processBlock(height, blockBytes, blockHash)
	if err != nil {
		d.Store.Rollback()
		return nil, err
	}
	if err := d.recordUndoJournal(height); err != nil {
		d.Store.Rollback()
		return nil, fmt.Errorf("indexer: %w: %v", errs.ErrStorageIO, err)
	}
	if err := d.Store.Commit(); err != nil {
		return nil, fmt.Errorf("indexer: %w: %v", errs.ErrStorageIO, err)
	}
	return &ProcessResult{Height: height, BlockHash: blockHash, StateRoot: root}, nil
}

// RollbackToHeight undoes every key this driver's ProcessBlockAtomic
// touched at every height above target, walking the undo journal from
// the current tip down to target+1 (spec.md §4.9 "Reorg"). This restores
// the SMT's own root/heights index, every outpoint's balance sheet,
// deployed bytecode, and the sequence counter to exactly the state they
// held right after target was committed — not just the block-hash/
// state-root ledger storeadapter keeps for its own bookkeeping.
func (d *Driver) RollbackToHeight(target uint32) error {
	raw, ok, err := d.Store.Get(tipHeightKey)
	if err != nil {
		return fmt.Errorf("indexer: rollback: read tip height: %w", err)
	}
	if !ok {
		return nil
	}
	current := binary.LittleEndian.Uint32(raw)
	for h := current; h > target; h-- {
		if err := d.undoHeight(h); err != nil {
			return fmt.Errorf("indexer: rollback height %d: %w", h, err)
		}
	}

	if target == 0 {
		d.Tree.SetRoot(smt.EmptyHash)
		return nil
	}
	root, ok, err := d.Tree.RootAt(target)
	if err != nil {
		return fmt.Errorf("indexer: rollback: root at height %d: %w", target, err)
	}
	if ok {
		d.Tree.SetRoot(root)
	}
	return nil
}

func (d *Driver) undoHeight(height uint32) error {
	key := undoJournalKey(height)
	raw, ok, err := d.Store.Get(key)
	if err != nil {
		return fmt.Errorf("read undo journal: %w", err)
	}
	if !ok {
		d.log.WithField("height", height).Warn("no undo journal recorded for height, skipping")
		return nil
	}
	entries, err := decodeUndoJournal(raw)
	if err != nil {
		return fmt.Errorf("decode undo journal: %w", err)
	}
	for _, e := range entries {
		if e.hadOld {
			d.Store.PutRaw(e.key, e.old)
		} else {
			d.Store.DeleteRaw(e.key)
		}
	}
	d.Store.Delete(key)
	return nil
}

func undoJournalKey(height uint32) []byte {
	return []byte(fmt.Sprintf("__INTERNAL/undo/%d", height))
}

// recordUndoJournal captures, for every key the just-processed block's
// checkpoint frame touched, the value that key held immediately before
// this block ran (or that it had none), and stores the whole record under
// the block's own undo journal key so it rides into the backend in the
// same commit. Must be called after processBlock and before Commit, while
// the block's checkpoint is still the top overlay frame.
func (d *Driver) recordUndoJournal(height uint32) error {
	keys := d.Store.TopOverlayKeys()
	entries := make([]undoEntry, 0, len(keys))
	for _, k := range keys {
		old, hadOld, err := d.Store.GetBeneath(k)
		if err != nil {
			return fmt.Errorf("capture pre-image of %x: %w", k, err)
		}
		entries = append(entries, undoEntry{key: k, hadOld: hadOld, old: old})
	}
	d.Store.Put(undoJournalKey(height), encodeUndoJournal(entries))
	return nil
}

type undoEntry struct {
	key    []byte
	hadOld bool
	old    []byte
}

func encodeUndoJournal(entries []undoEntry) []byte {
	var out []byte
	for _, e := range entries {
		var keyLen, oldLen [4]byte
		binary.BigEndian.PutUint32(keyLen[:], uint32(len(e.key)))
		out = append(out, keyLen[:]...)
		out = append(out, e.key...)
		if e.hadOld {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		binary.BigEndian.PutUint32(oldLen[:], uint32(len(e.old)))
		out = append(out, oldLen[:]...)
		out = append(out, e.old...)
	}
	return out
}

func decodeUndoJournal(raw []byte) ([]undoEntry, error) {
	var out []undoEntry
	for len(raw) > 0 {
		if len(raw) < 4 {
			return nil, fmt.Errorf("truncated undo journal key length")
		}
		keyLen := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < keyLen {
			return nil, fmt.Errorf("truncated undo journal key")
		}
		key := append([]byte(nil), raw[:keyLen]...)
		raw = raw[keyLen:]
		if len(raw) < 1 {
			return nil, fmt.Errorf("truncated undo journal hadOld flag")
		}
		hadOld := raw[0] == 1
		raw = raw[1:]
		if len(raw) < 4 {
			return nil, fmt.Errorf("truncated undo journal value length")
		}
		oldLen := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < oldLen {
			return nil, fmt.Errorf("truncated undo journal value")
		}
		old := append([]byte(nil), raw[:oldLen]...)
		raw = raw[oldLen:]
		out = append(out, undoEntry{key: key, hadOld: hadOld, old: old})
	}
	return out, nil
}

// WithStore returns a shallow copy of Driver sharing every subsystem
// except the atomic store and SMT tree, which are swapped for the given
// ones. The view/preview engine (spec.md §4.10) uses this to replay a
// candidate block through ProcessBlockAtomic against a throwaway overlay
// without the production store ever observing it.
func (d *Driver) WithStore(store *kv.AtomicStore, tree *smt.Tree) *Driver {
	return &Driver{
		Store:        store,
		Tree:         tree,
		Bytecode:     vm.NewBytecodeStore(store),
		Host:         d.Host,
		Sequence:     vm.NewSequence(store),
		Trace:        d.Trace,
		FuelConstant: d.FuelConstant,
		log:          d.log,
	}
}

func (d *Driver) processBlock(height uint32, blockBytes []byte, blockHash [32]byte) ([32]byte, error) {
	var blk wire.MsgBlock
	if err := blk.Deserialize(bytes.NewReader(blockBytes)); err != nil {
		return [32]byte{}, fmt.Errorf("indexer: %w: %v", errs.ErrBlockDecode, err)
	}

	for txIndex, tx := range blk.Transactions {
		txid := tx.TxHash()
		var txBuf bytes.Buffer
		if err := tx.Serialize(&txBuf); err != nil {
			return [32]byte{}, fmt.Errorf("indexer: %w: %v", errs.ErrBlockDecode, err)
		}
		if err := d.processTx(height, uint32(txIndex), txid, tx, txBuf.Bytes(), blockBytes); err != nil {
			return [32]byte{}, err
		}
	}

	if err := d.Tree.CommitHeight(height); err != nil {
		return [32]byte{}, fmt.Errorf("indexer: %w: %v", errs.ErrSMTCorruption, err)
	}

	var heightBuf [4]byte
	binary.LittleEndian.PutUint32(heightBuf[:], height)
	d.Store.Put(tipHeightKey, heightBuf[:])
	d.Store.Put(blockHashKey(height), blockHash[:])

	return d.Tree.Root(), nil
}

// processTx implements one iteration of spec.md §4.8's per-transaction
// loop.
func (d *Driver) processTx(height uint32, txIndex uint32, txid [32]byte, tx *wire.MsgTx, txBytes, blockBytes []byte) error {
	consumed := d.seedFromConsumedInputs(tx)

	rs, stones, ok := protostone.Parse(tx)
	if !ok {
		return d.passThrough(txid, tx, consumed)
	}

	balancesByOutput := map[uint32]*balance.Sheet{0: consumed}
	nRealOutputs := len(tx.TxOut)

	applyEdicts(balancesByOutput, rs.Edicts)
	d.processProtoburns(balancesByOutput, stones, nRealOutputs)

	for pmIndex, ps := range stones {
		if ps.Invalid {
			// spec.md:312 "Protostone invalid => that protostone is
			// skipped, tx continues": no edicts, no cellpack dispatch, but
			// its slot still counts toward later protostones' virtual vout.
			continue
		}
		vout := protostone.VirtualVout(nRealOutputs, pmIndex)
		applyEdicts(balancesByOutput, ps.Edicts)

		if !ps.IsCellpackMessage() {
			continue
		}

		incomingVout := resolveFrom(ps, nRealOutputs, pmIndex)
		incoming := outputSheet(balancesByOutput, incomingVout)
		delete(balancesByOutput, incomingVout)

		if err := d.processProtomessage(height, txIndex, txid, vout, tx, ps, incoming, balancesByOutput, txBytes, blockBytes); err != nil {
			d.log.WithError(err).Warn("protomessage reverted")
		}
	}

	d.reconcilePointers(balancesByOutput, rs, nRealOutputs)
	return d.flushOutputs(txid, balancesByOutput)
}

// seedFromConsumedInputs merges the balance sheets of every outpoint tx
// spends into one sheet, and removes those outpoints from the store
// (spec.md §4.8 "index consumed inputs out of OUTPOINTS_FOR_ADDRESS").
func (d *Driver) seedFromConsumedInputs(tx *wire.MsgTx) *balance.Sheet {
	consumed := balance.New()
	for _, in := range tx.TxIn {
		op := Outpoint{Txid: in.PreviousOutPoint.Hash, Vout: in.PreviousOutPoint.Index}
		sheet := balance.OutpointSheet(d.Store, op.Bytes())
		prior := sheet.ToSheet()
		_ = prior.Pipe(consumed)
		for _, e := range prior.Entries() {
			sheet.Set(e.ID, alkanes.ZeroU128)
		}
		sheet.Flush()
	}
	return consumed
}

// passThrough handles a transaction with no runestone envelope: its
// consumed balances default-transfer to the transaction's first output,
// preserving conservation (spec.md §8 invariant 2) even though no edict
// ever names it explicitly.
func (d *Driver) passThrough(txid [32]byte, tx *wire.MsgTx, consumed *balance.Sheet) error {
	if consumed.IsEmpty() || len(tx.TxOut) == 0 {
		return nil
	}
	return d.flushOutputs(txid, map[uint32]*balance.Sheet{0: consumed})
}

func outputSheet(m map[uint32]*balance.Sheet, vout uint32) *balance.Sheet {
	s, ok := m[vout]
	if !ok {
		s = balance.New()
		m[vout] = s
	}
	return s
}

// applyEdicts applies a declaration-ordered edict list across
// balancesByOutput, each edict seeing the effect of the ones before it
// (spec.md §4.8 "Edicts within a protostone are applied in declaration
// order; later edicts see earlier ones.").
func applyEdicts(m map[uint32]*balance.Sheet, edicts []alkanes.Edict) {
	for _, e := range edicts {
		from := outputSheet(m, 0)
		if err := from.Decrease(e.Id, e.Amount); err != nil {
			continue
		}
		to := outputSheet(m, e.Output)
		_ = to.Increase(e.Id, e.Amount)
	}
}

// processProtoburns mints protocol-side balances for every tag-13
// protostone that declares burn = Some(x): every rune sitting at that
// protostone's own virtual vout is converted into the protocol rune
// RuneId{Block: x, Tx: <protostone index>} at the same vout (spec.md
// §4.8 "process protoburns (tag-13) -> mint protocol-side balances").
func (d *Driver) processProtoburns(m map[uint32]*balance.Sheet, stones []protostone.Protostone, nRealOutputs int) {
	for i, ps := range stones {
		if ps.Invalid || ps.Burn == nil {
			continue
		}
		vout := protostone.VirtualVout(nRealOutputs, i)
		sheet := outputSheet(m, vout)
		entries := sheet.Entries()
		for _, e := range entries {
			_ = sheet.Decrease(e.ID, e.Amount)
		}
		minted := alkanes.RuneId{Block: alkanes.U128FromUint64(*ps.Burn), Tx: alkanes.U128FromUint64(uint64(i))}
		var total alkanes.U128
		for _, e := range entries {
			if sum, err := total.Add(e.Amount); err == nil {
				total = sum
			}
		}
		if !total.IsZero() {
			_ = sheet.Increase(minted, total)
		}
	}
}

// processProtomessage dispatches one cellpack-bearing protostone: either
// a deployment (reserved header target) or a call into an existing
// alkane (canonical target), per spec.md §4.8's dispatch rule.
func (d *Driver) processProtomessage(
	height uint32, txIndex uint32, txid [32]byte, vout uint32, tx *wire.MsgTx,
	ps protostone.Protostone, incoming *balance.Sheet, balancesByOutput map[uint32]*balance.Sheet,
	txBytes, blockBytes []byte,
) error {
	nRealOutputs := len(tx.TxOut)

	cp := ps.Cellpack()
	target, err := cp.Target()
	if err != nil {
		d.refundIncoming(balancesByOutput, incoming, ps.Refund, nRealOutputs)
		return fmt.Errorf("indexer: %w: %v", errs.ErrProtostoneInvalid, err)
	}

	d.Store.Checkpoint()

	resolved, code, created, err := d.resolveTarget(target, cp, tx)
	if err != nil {
		d.Store.Rollback()
		d.refundIncoming(balancesByOutput, incoming, ps.Refund, nRealOutputs)
		return err
	}

	incomingList := incomingAlkanesFromSheet(incoming)

	parcel := callctx.Parcel{
		Ctx: callctx.Context{
			Myself:          resolved,
			Caller:          alkanes.AlkaneId{},
			Vout:            vout,
			IncomingAlkanes: incomingList,
			Inputs:          cp.Calldata(),
		},
		Transaction: txBytes,
		Block:       blockBytes,
		Height:      height,
		TxIndex:     txIndex,
		Store:       d.Store,
		Calldata:    cp.Encode(),
	}
	if ps.Pointer != nil {
		parcel.Pointer = *ps.Pointer
	}
	if ps.Refund != nil {
		parcel.RefundPointer = *ps.Refund
	}

	tank := vm.NewTank(d.FuelConstant)
	req := &vm.CallRequest{
		Target:   resolved,
		Bytecode: code,
		Parcel:   parcel,
		Tank:     tank,
		Height:   height,
		TxID:     txid,
		Vout:     vout,
		Kind:     vm.KindCall,
	}

	result, err := d.Host.Execute(req)
	if err != nil || result.Status != vm.StatusOK {
		d.Store.Rollback()
		if created {
			d.Sequence.Next() // burn the allocated index so it is never reused (simplification: sequence does not decrement)
		}
		d.refundIncoming(balancesByOutput, incoming, ps.Refund, nRealOutputs)
		trap := ""
		if result != nil {
			trap = result.Trap
		}
		return fmt.Errorf("indexer: protomessage reverted: %s", trap)
	}

	if err := d.Store.Commit(); err != nil {
		return fmt.Errorf("indexer: %w: %v", errs.ErrStorageIO, err)
	}

	outVout := outputSheet(balancesByOutput, vout)
	if err := incoming.Pipe(outVout); err != nil {
		d.log.WithError(err).Warn("incoming balance overflow on protomessage output, dropping excess")
	}
	if created {
		_ = outVout.Increase(alkanes.AlkaneIdToRuneId(resolved), alkanes.U128FromUint64(1))
	}
	d.reconcileProtostonePointer(balancesByOutput, vout, ps.Pointer, nRealOutputs)
	return nil
}

// pointerTarget resolves a pointer/refund field to its target output,
// falling back to firstNonOpReturnOutput (spec.md §4.8 "Tie-breaks"),
// which takes output 0 without inspecting its script. ok is false when
// the transaction has no outputs, meaning the balance must be burned.
func pointerTarget(pointer *uint32, nRealOutputs int) (uint32, bool) {
	if pointer != nil {
		return *pointer, true
	}
	return firstNonOpReturnOutput(nRealOutputs)
}

// refundIncoming restores a reverted protomessage's incoming balance to its
// refund_pointer (or the protocol default), matching spec.md's S3 scenario:
// a failed child call leaves the original balance intact at the
// refund target rather than lost.
func (d *Driver) refundIncoming(m map[uint32]*balance.Sheet, incoming *balance.Sheet, refund *uint32, nRealOutputs int) {
	target, ok := pointerTarget(refund, nRealOutputs)
	if !ok {
		return
	}
	dst := outputSheet(m, target)
	if err := incoming.Pipe(dst); err != nil {
		d.log.WithError(err).Warn("refund overflow, dropping excess")
	}
}

// reconcileProtostonePointer moves a successful protomessage's own output
// (sitting at its virtual vout) to its pointer target, per spec.md §4.8
// "reconcile outgoing runes: assign to pointer".
func (d *Driver) reconcileProtostonePointer(m map[uint32]*balance.Sheet, vout uint32, pointer *uint32, nRealOutputs int) {
	target, ok := pointerTarget(pointer, nRealOutputs)
	src := outputSheet(m, vout)
	if !ok {
		for _, e := range src.Entries() {
			_ = src.Decrease(e.ID, e.Amount)
		}
		return
	}
	if target == vout {
		return
	}
	dst := outputSheet(m, target)
	for _, e := range src.Entries() {
		if err := src.Decrease(e.ID, e.Amount); err == nil {
			_ = dst.Increase(e.ID, e.Amount)
		}
	}
}

func incomingAlkanesFromSheet(s *balance.Sheet) []callctx.IncomingAlkane {
	entries := s.Entries()
	out := make([]callctx.IncomingAlkane, 0, len(entries))
	for _, e := range entries {
		out = append(out, callctx.IncomingAlkane{
			Id:     alkanes.AlkaneId{Block: e.ID.Block, Tx: e.ID.Tx},
			Amount: e.Amount,
		})
	}
	return out
}

// resolveTarget implements the AlkaneId header dispatch of spec.md §3/§4.8:
// reserved headers allocate a fresh id and store bytecode; canonical ids
// load existing bytecode. Direct-init and predictable deployments take
// their wasm bytes from tx's witness inscription (spec.md §4.8 S1), not
// from the cellpack's own words, which carry only the target id and the
// constructor opcode.
func (d *Driver) resolveTarget(target alkanes.AlkaneId, cp alkanes.Cellpack, tx *wire.MsgTx) (resolved alkanes.AlkaneId, code []byte, created bool, err error) {
	if !target.IsReservedHeader() {
		code, ok, err := d.Bytecode.Get(target)
		if err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		if !ok {
			return alkanes.AlkaneId{}, nil, false, fmt.Errorf("indexer: no bytecode deployed at %s", target)
		}
		return target, code, false, nil
	}

	switch target.Block.Uint64() {
	case alkanes.HeaderDirectInit:
		deployed, ok := extractInscription(tx)
		if !ok || len(deployed) == 0 {
			return alkanes.AlkaneId{}, nil, false, fmt.Errorf("indexer: direct init at %s carries no witness inscription", target)
		}
		idx, err := d.Sequence.Next()
		if err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		id := alkanes.AlkaneId{Block: alkanes.U128FromUint64(alkanes.HeaderDeployedLegacy), Tx: alkanes.U128FromUint64(idx)}
		if err := d.Bytecode.Put(id, deployed); err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		return id, deployed, true, nil

	case alkanes.HeaderPredictable:
		id := alkanes.AlkaneId{Block: alkanes.U128FromUint64(alkanes.HeaderDeployedPredicted), Tx: target.Tx}
		code, ok, err := d.Bytecode.Get(id)
		if err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		if !ok {
			deployed, hasInscription := extractInscription(tx)
			if !hasInscription || len(deployed) == 0 {
				return alkanes.AlkaneId{}, nil, false, fmt.Errorf("indexer: predictable deployment at %s carries no witness inscription", target)
			}
			if err := d.Bytecode.Put(id, deployed); err != nil {
				return alkanes.AlkaneId{}, nil, false, err
			}
			return id, deployed, true, nil
		}
		return id, code, false, nil

	case alkanes.HeaderFactoryCloneOf2, alkanes.HeaderFactoryCloneOf4:
		source := target
		source.Block = alkanes.U128FromUint64(map[uint64]uint64{
			alkanes.HeaderFactoryCloneOf2: alkanes.HeaderDeployedLegacy,
			alkanes.HeaderFactoryCloneOf4: alkanes.HeaderDeployedPredicted,
		}[target.Block.Uint64()])
		code, ok, err := d.Bytecode.Get(source)
		if err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		if !ok {
			return alkanes.AlkaneId{}, nil, false, fmt.Errorf("indexer: clone source %s not deployed", source)
		}
		idx, err := d.Sequence.Next()
		if err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		id := alkanes.AlkaneId{Block: alkanes.U128FromUint64(alkanes.HeaderDeployedLegacy), Tx: alkanes.U128FromUint64(idx)}
		if err := d.Bytecode.Put(id, code); err != nil {
			return alkanes.AlkaneId{}, nil, false, err
		}
		return id, code, true, nil

	default:
		return alkanes.AlkaneId{}, nil, false, fmt.Errorf("indexer: unrecognized reserved header %s", target)
	}
}

// reconcilePointers sweeps whatever balance is still sitting at a virtual
// (protostone-slot) vout once every protostone has run. Each protomessage
// already reconciles its own vout via reconcileProtostonePointer/
// refundIncoming; what can still be left here is a non-message protostone
// that only carried edicts, addressed by an earlier edict's output field —
// since a virtual vout is never a real spendable output, it has nowhere to
// live and falls back to the Runestone-level pointer default, same
// tie-break rule as a protostone's own pointer (spec.md §4.8 "Tie-breaks").
func (d *Driver) reconcilePointers(m map[uint32]*balance.Sheet, rs protostone.Runestone, nRealOutputs int) {
	for vout, sheet := range m {
		if vout < uint32(nRealOutputs) {
			continue
		}
		target, ok := pointerTarget(rs.Pointer, nRealOutputs)
		if !ok {
			for _, e := range sheet.Entries() {
				_ = sheet.Decrease(e.ID, e.Amount)
			}
			continue
		}
		dst := outputSheet(m, target)
		for _, e := range sheet.Entries() {
			if err := sheet.Decrease(e.ID, e.Amount); err == nil {
				_ = dst.Increase(e.ID, e.Amount)
			}
		}
	}
}

// firstNonOpReturnOutput is the protocol default pointer/refund target
// (spec.md §4.8): this simplified model has no script inspection here
// (that lives in protostone.Parse's envelope scan), so it always assumes
// output 0 is spendable when outputs exist.
func firstNonOpReturnOutput(nRealOutputs int) (uint32, bool) {
	if nRealOutputs == 0 {
		return 0, false
	}
	return 0, true
}

func (d *Driver) flushOutputs(txid [32]byte, m map[uint32]*balance.Sheet) error {
	for vout, sheet := range m {
		op := Outpoint{Txid: txid, Vout: vout}
		ps := balance.OutpointSheet(d.Store, op.Bytes())
		for _, e := range sheet.Entries() {
			ps.Set(e.ID, e.Amount)
		}
		ps.Flush()
		if err := d.Tree.Put(op.Bytes(), balance.EncodeSMT(sheet)); err != nil {
			return fmt.Errorf("indexer: %w: %v", errs.ErrSMTCorruption, err)
		}
	}
	return nil
}
