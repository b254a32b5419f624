package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"alkanes/internal/balance"
	"alkanes/internal/callctx"
	"alkanes/internal/errs"
	"alkanes/internal/smt"
	"alkanes/internal/trace"
	"alkanes/pkg/alkanes"
)

// CallKind distinguishes the three ways one guest may enter another
// (spec.md §4.6 "Call semantics").
type CallKind int

const (
	KindCall CallKind = iota
	KindStaticcall
	KindDelegatecall
)

// CallRequest is everything Host.Execute needs to run one guest frame: the
// bytecode to instantiate, the parcel describing its Context and the
// atomic-store handle it should read and write through, and the fuel tank
// it draws from.
type CallRequest struct {
	Target   alkanes.AlkaneId
	Bytecode []byte
	Parcel   callctx.Parcel
	Tank     *Tank
	FuelCap  uint64
	Height   uint32
	TxID     [32]byte
	Vout     uint32
	Kind     CallKind

	// PinnedBalances, when set, pins every __balance read to the SMT root
	// committed at Height instead of the live, unversioned PointerSheet
	// (spec.md §4.10: a view's reads must reflect state "as of" the
	// requested height). Left nil for ordinary transaction execution,
	// where __balance reads the in-flight sheet being built for this
	// block.
	PinnedBalances *smt.Tree
}

// CallResult is what a frame returns to its caller (or to the indexer
// driver, for the outermost frame).
type CallResult struct {
	Status     CallStatus
	ReturnData []byte
	Trap       string
}

// Host is the C5 VM host (spec.md §4.6): it owns the wasmer engine and a
// long-lived store, a bounded module cache, the bytecode table and the
// trace ring buffer shared across every protomessage in a process.
// Grounded on the teacher's HeavyVM (core/virtual_machine.go), generalized
// from one flat host-call set to the full ABI table and from a single gas
// meter to a shared, nestable fuel Tank.
type Host struct {
	engine       *wasmer.Engine
	store        *wasmer.Store
	modules      *ModuleCache
	bytecode     *BytecodeStore
	trace        *trace.Buffer
	disableCache bool
}

// NewHost builds a host around bytecode/trace storage, with a module cache
// sized modCacheSize. disableCache forces a fresh module compile (and so a
// fresh instance) on every call, per spec.md's "disable LRU cache" runtime
// flag.
func NewHost(bc *BytecodeStore, tr *trace.Buffer, modCacheSize int, disableCache bool) *Host {
	engine := wasmer.NewEngine()
	return &Host{
		engine:       engine,
		store:        wasmer.NewStore(engine),
		modules:      NewModuleCache(modCacheSize),
		bytecode:     bc,
		trace:        tr,
		disableCache: disableCache,
	}
}

// ResetModuleCache purges every compiled module, forcing the next call
// against any alkane to recompile from stored bytecode (spec.md §4.6
// "Memory refresh"; exposed to the runtime adapter's refresh_memory).
func (h *Host) ResetModuleCache() {
	h.modules.Purge()
}

func (h *Host) compile(id alkanes.AlkaneId, code []byte) (*wasmer.Module, error) {
	if !h.disableCache {
		if m, ok := h.modules.Get(id); ok {
			return m, nil
		}
	}
	mod, err := wasmer.NewModule(h.store, code)
	if err != nil {
		return nil, fmt.Errorf("vm: %w: %v", errs.ErrModuleValidationError, err)
	}
	if !h.disableCache {
		h.modules.Put(id, mod)
	}
	return mod, nil
}

// hostState is the per-call mutable context the registered host functions
// close over, mirroring the teacher's hostCtx in core/virtual_machine.go.
type hostState struct {
	host   *Host
	mem    *wasmer.Memory
	req    *CallRequest
	tank   *Tank
	static bool

	lastChildReturn []byte
	flushed         []byte
}

func (hs *hostState) bounds(ptr, ln int32) ([]byte, error) {
	if ln < 0 || ptr < 0 {
		return nil, fmt.Errorf("vm: %w: negative pointer or length", errs.ErrMemoryOutOfBounds)
	}
	data := hs.mem.Data()
	end := int64(ptr) + int64(ln)
	if end > int64(len(data)) {
		return nil, fmt.Errorf("vm: %w: [%d:%d] exceeds memory size %d", errs.ErrMemoryOutOfBounds, ptr, end, len(data))
	}
	return data[ptr:end], nil
}

func (hs *hostState) read(ptr, ln int32) ([]byte, error) {
	b, err := hs.bounds(ptr, ln)
	if err != nil {
		return nil, err
	}
	out := make([]byte, ln)
	copy(out, b)
	return out, nil
}

func (hs *hostState) write(ptr int32, data []byte) error {
	b, err := hs.bounds(ptr, int32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (hs *hostState) charge(name string, proportional int) error {
	cost := HostCallCost(name, proportional)
	return hs.tank.Charge(cost)
}

// Execute instantiates req.Bytecode and runs its `_start` export to
// completion, returning the guest's status and return data. Nested calls
// made from within `_start` (via __call/__staticcall/__delegatecall) are
// handled synchronously inside the registered host functions.
func (h *Host) Execute(req *CallRequest) (*CallResult, error) {
	return h.ExecuteExport(req, "_start", true)
}

// ExecuteExport is Execute generalized to an arbitrary guest export, used
// by the view/preview engine (spec.md §4.10) to invoke a named view
// function instead of the transaction entrypoint. record controls whether
// the call is recorded in the shared trace ring buffer: view calls are
// read-only introspection, not part of the indexed transaction history,
// so callers pass false.
func (h *Host) ExecuteExport(req *CallRequest, export string, record bool) (*CallResult, error) {
	var mod *wasmer.Module
	var err error
	if req.Kind == KindDelegatecall {
		// req.Target is the caller's id here, so the id-keyed module cache
		// would hand back the caller's module instead of req.Bytecode.
		mod, err = wasmer.NewModule(h.store, req.Bytecode)
		if err != nil {
			err = fmt.Errorf("vm: %w: %v", errs.ErrModuleValidationError, err)
		}
	} else {
		mod, err = h.compile(req.Target, req.Bytecode)
	}
	if err != nil {
		return &CallResult{Status: StatusRevert, Trap: ClassifyTrap(err)}, nil
	}

	hs := &hostState{host: h, req: req, tank: req.Tank, static: req.Kind == KindStaticcall}
	imports := h.registerHost(hs)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return &CallResult{Status: StatusRevert, Trap: ClassifyTrap(fmt.Errorf("%w: %v", errs.ErrModuleValidationError, err))}, nil
	}
	defer instance.Close()

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return &CallResult{Status: StatusRevert, Trap: ClassifyTrap(fmt.Errorf("%w: %v", errs.ErrMemoryOutOfBounds, err))}, nil
	}
	hs.mem = mem

	entry, err := instance.Exports.GetFunction(export)
	if err != nil {
		return &CallResult{Status: StatusRevert, Trap: ClassifyTrap(fmt.Errorf("%w: %v", errs.ErrInvalidHostCall, err))}, nil
	}

	if record {
		h.trace.Append(req.Height, req.TxID, req.Vout, trace.Event{Kind: trace.ReceiveIntent, Ctx: &req.Parcel.Ctx})
	}

	if _, err := entry(); err != nil {
		if record {
			h.trace.Append(req.Height, req.TxID, req.Vout, trace.Event{Kind: trace.RevertContext, RespOK: false})
		}
		return &CallResult{Status: StatusRevert, Trap: ClassifyTrap(err)}, nil
	}

	if record {
		h.trace.Append(req.Height, req.TxID, req.Vout, trace.Event{Kind: trace.ReturnContext, RespOK: true, RespData: hs.flushed})
	}
	return &CallResult{Status: StatusOK, ReturnData: hs.flushed}, nil
}

func i32Params(n int) []wasmer.ValueKind {
	out := make([]wasmer.ValueKind, n)
	for i := range out {
		out[i] = wasmer.ValueKind(wasmer.I32)
	}
	return out
}

func fn(store *wasmer.Store, nParams, nResults int, body func(args []wasmer.Value) ([]wasmer.Value, error)) *wasmer.Function {
	return wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32Params(nParams)...), wasmer.NewValueTypes(i32Params(nResults)...)),
		body,
	)
}

func i32err(v int32) []wasmer.Value { return []wasmer.Value{wasmer.NewI32(v)} }

// registerHost builds the import object implementing the full ABI table of
// spec.md §4.6. Grounded on the teacher's registerHost in
// core/virtual_machine.go, generalized from the teacher's four-call ABI to
// this spec's seventeen-call one.
func (h *Host) registerHost(hs *hostState) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	store := h.store

	loadContext := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__load_context", 0); err != nil {
			return nil, err
		}
		return nil, hs.write(args[0].I32(), hs.req.Parcel.Ctx.Encode())
	})

	requestContext := fn(store, 0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__request_context", 0); err != nil {
			return nil, err
		}
		return i32err(int32(len(hs.req.Parcel.Ctx.Encode()))), nil
	})

	loadTransaction := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__load_transaction", len(hs.req.Parcel.Transaction)); err != nil {
			return nil, err
		}
		return nil, hs.write(args[0].I32(), hs.req.Parcel.Transaction)
	})

	requestTransaction := fn(store, 0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__request_transaction", 0); err != nil {
			return nil, err
		}
		return i32err(int32(len(hs.req.Parcel.Transaction))), nil
	})

	loadBlock := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__load_block", len(hs.req.Parcel.Block)); err != nil {
			return nil, err
		}
		return nil, hs.write(args[0].I32(), hs.req.Parcel.Block)
	})

	requestBlock := fn(store, 0, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__request_block", 0); err != nil {
			return nil, err
		}
		return i32err(int32(len(hs.req.Parcel.Block))), nil
	})

	storageKey := func(kptr, klen int32) ([]byte, error) { return hs.read(kptr, klen) }

	loadStorage := fn(store, 3, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		key, err := storageKey(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		val, ok, err := hs.req.Parcel.Store.Get(guestStorageKey(hs.req.Target, key))
		if err != nil {
			return nil, fmt.Errorf("vm: %w: %v", errs.ErrStorageIO, err)
		}
		if err := hs.charge("__load_storage", len(val)); err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return nil, hs.write(args[2].I32(), val)
	})

	requestStorage := fn(store, 2, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		key, err := storageKey(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		val, ok, err := hs.req.Parcel.Store.Get(guestStorageKey(hs.req.Target, key))
		if err != nil {
			return nil, fmt.Errorf("vm: %w: %v", errs.ErrStorageIO, err)
		}
		if err := hs.charge("__request_storage", 0); err != nil {
			return nil, err
		}
		if !ok {
			return i32err(0), nil
		}
		return i32err(int32(len(val))), nil
	})

	logCall := fn(store, 2, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__log", 0); err != nil {
			return nil, err
		}
		_, err := hs.read(args[0].I32(), args[1].I32())
		return nil, err
	})

	balanceCall := fn(store, 3, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__balance", 0); err != nil {
			return nil, err
		}
		who, err := hs.read(args[0].I32(), 36)
		if err != nil {
			return nil, err
		}
		whatBytes, err := hs.read(args[1].I32(), 32)
		if err != nil {
			return nil, err
		}
		what, err := alkanes.AlkaneIdFromBytes32(whatBytes)
		if err != nil {
			return nil, fmt.Errorf("vm: %w: %v", errs.ErrInvalidHostCall, err)
		}
		runeId := alkanes.AlkaneIdToRuneId(what)
		var amt alkanes.U128
		if tree := hs.req.PinnedBalances; tree != nil {
			record, ok, err := tree.GetAt(who, hs.req.Height)
			if err != nil {
				return nil, fmt.Errorf("vm: %w: %v", errs.ErrStorageIO, err)
			}
			if ok {
				amt, err = balance.AmountFromSMT(record, runeId)
				if err != nil {
					return nil, fmt.Errorf("vm: %w: %v", errs.ErrStorageIO, err)
				}
			}
		} else {
			sheet := balance.OutpointSheet(hs.req.Parcel.Store, who)
			amt, err = sheet.Get(runeId)
			if err != nil {
				return nil, fmt.Errorf("vm: %w: %v", errs.ErrStorageIO, err)
			}
		}
		b := amt.Bytes16BE()
		return nil, hs.write(args[2].I32(), b[:])
	})

	sequenceCall := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__sequence", 0); err != nil {
			return nil, err
		}
		seq, err := NewSequence(hs.req.Parcel.Store).Current()
		if err != nil {
			return nil, err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], seq)
		return nil, hs.write(args[0].I32(), buf[:])
	})

	fuelCall := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__fuel", 0); err != nil {
			return nil, err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], hs.tank.Remaining())
		return nil, hs.write(args[0].I32(), buf[:])
	})

	heightCall := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__height", 0); err != nil {
			return nil, err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], hs.req.Parcel.Height)
		return nil, hs.write(args[0].I32(), buf[:])
	})

	returndatacopy := fn(store, 1, 0, func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := hs.charge("__returndatacopy", len(hs.lastChildReturn)); err != nil {
			return nil, err
		}
		return nil, hs.write(args[0].I32(), hs.lastChildReturn)
	})

	flushStorage := fn(store, 2, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
		payload, err := hs.read(args[0].I32(), args[1].I32())
		if err != nil {
			return nil, err
		}
		ret, err := hs.applyFlush(payload)
		if err != nil {
			return nil, err
		}
		hs.flushed = ret
		return i32err(0), nil
	})

	makeCall := func(kind CallKind) *wasmer.Function {
		return fn(store, 5, 1, func(args []wasmer.Value) ([]wasmer.Value, error) {
			cellpack, err := hs.read(args[0].I32(), args[1].I32())
			if err != nil {
				return nil, err
			}
			transfer, err := hs.read(args[2].I32(), args[3].I32())
			if err != nil {
				return nil, err
			}
			fuelLimit := uint64(args[4].I32())
			name := map[CallKind]string{KindCall: "__call", KindStaticcall: "__staticcall", KindDelegatecall: "__delegatecall"}[kind]
			if err := hs.charge(name, 0); err != nil {
				return nil, err
			}
			status, err := h.nestedCall(hs, kind, cellpack, transfer, fuelLimit)
			if err != nil {
				return nil, err
			}
			return i32err(int32(status)), nil
		})
	}

	imports.Register("env", map[string]wasmer.IntoExtern{
		"__load_context":       loadContext,
		"__request_context":    requestContext,
		"__load_transaction":   loadTransaction,
		"__request_transaction": requestTransaction,
		"__load_block":         loadBlock,
		"__request_block":      requestBlock,
		"__load_storage":       loadStorage,
		"__request_storage":    requestStorage,
		"__log":                logCall,
		"__balance":            balanceCall,
		"__sequence":           sequenceCall,
		"__fuel":               fuelCall,
		"__height":             heightCall,
		"__returndatacopy":     returndatacopy,
		"__flush_storage":      flushStorage,
		"__call":               makeCall(KindCall),
		"__staticcall":         makeCall(KindStaticcall),
		"__delegatecall":       makeCall(KindDelegatecall),
	})

	return imports
}

// guestStorageKey scopes a guest-supplied key to its own alkane's storage
// namespace, so two alkanes can never collide on raw key bytes.
func guestStorageKey(id alkanes.AlkaneId, key []byte) []byte {
	out := make([]byte, 0, 32+len(key))
	out = append(out, id.Bytes32()...)
	out = append(out, key...)
	return out
}

// applyFlush decodes the guest's return-protocol payload (spec.md §4.6:
// "a guest's return payload may declare state deltas, which the host
// applies... atop its atomic checkpoint") and applies its storage writes,
// returning the trailing return-data bytes. The wire format is this host's
// own convention: [u32 count][(u32 klen, key, u32 vlen, val)]... followed
// by [u32 retlen][ret bytes], since spec.md leaves the concrete guest-side
// encoding unspecified.
func (hs *hostState) applyFlush(payload []byte) ([]byte, error) {
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(payload) {
			return 0, fmt.Errorf("vm: %w: truncated flush payload", errs.ErrInvalidHostCall)
		}
		v := binary.BigEndian.Uint32(payload[off:])
		off += 4
		return v, nil
	}
	readBytes := func(n uint32) ([]byte, error) {
		if off+int(n) > len(payload) {
			return nil, fmt.Errorf("vm: %w: truncated flush payload", errs.ErrInvalidHostCall)
		}
		b := payload[off : off+int(n)]
		off += int(n)
		return b, nil
	}

	count, err := readU32()
	if err != nil {
		return nil, err
	}
	if hs.static && count > 0 {
		return nil, fmt.Errorf("vm: %w: staticcall attempted a storage write", errs.ErrInvalidHostCall)
	}
	writes := make(map[string][]byte, count)
	var order []string
	for i := uint32(0); i < count; i++ {
		klen, err := readU32()
		if err != nil {
			return nil, err
		}
		key, err := readBytes(klen)
		if err != nil {
			return nil, err
		}
		vlen, err := readU32()
		if err != nil {
			return nil, err
		}
		val, err := readBytes(vlen)
		if err != nil {
			return nil, err
		}
		writes[string(key)] = append([]byte(nil), val...)
		order = append(order, string(key))
	}
	retlen, err := readU32()
	if err != nil {
		return nil, err
	}
	ret, err := readBytes(retlen)
	if err != nil {
		return nil, err
	}
	for _, k := range order {
		scoped := guestStorageKey(hs.req.Target, []byte(k))
		v := writes[k]
		if len(v) == 0 {
			hs.req.Parcel.Store.Delete(scoped)
			continue
		}
		hs.req.Parcel.Store.Put(scoped, v)
	}
	return append([]byte(nil), ret...), nil
}

// nestedCall implements __call/__staticcall/__delegatecall: a fresh
// checkpoint, a child Context, a recursive Execute, then commit or
// rollback depending on the child's status (spec.md §4.6 "Call
// semantics").
func (h *Host) nestedCall(hs *hostState, kind CallKind, cellpackBytes, transferBytes []byte, fuelLimit uint64) (CallStatus, error) {
	cp, err := alkanes.DecodeCellpack(cellpackBytes)
	if err != nil {
		return StatusRevert, nil
	}
	target, err := cp.Target()
	if err != nil {
		return StatusRevert, nil
	}

	incoming, err := decodeTransfers(transferBytes)
	if err != nil {
		return StatusRevert, nil
	}

	childTarget := target
	executeAs := target
	if kind == KindDelegatecall {
		executeAs = hs.req.Target // writes land in the caller's namespace
	}

	code, ok, err := h.bytecode.Get(childTarget)
	if err != nil {
		return StatusRevert, fmt.Errorf("vm: %w: %v", errs.ErrStorageIO, err)
	}
	if !ok {
		return StatusRevert, nil
	}

	childStore := hs.req.Parcel.Store
	if kind != KindDelegatecall {
		childStore = hs.req.Parcel.Store.Derive(nil)
	}
	childStore.Checkpoint()

	childCeiling := CallFuelCeiling(hs.tank, fuelLimit)
	_ = childCeiling // only recorded in FuelCap: Charge draws on the shared tank, so fuelLimit itself is not enforced

	childCtx := callctx.Context{
		Myself:          executeAs,
		Caller:          hs.req.Target,
		Vout:            hs.req.Parcel.Ctx.Vout,
		IncomingAlkanes: incoming,
		Inputs:          cp.Calldata(),
	}
	childParcel := hs.req.Parcel
	childParcel.Ctx = childCtx
	childParcel.Store = childStore

	kindEvt := trace.EnterCall
	if kind == KindStaticcall {
		kindEvt = trace.EnterStaticcall
	} else if kind == KindDelegatecall {
		kindEvt = trace.EnterDelegatecall
	}
	h.trace.Append(hs.req.Height, hs.req.TxID, hs.req.Vout, trace.Event{Kind: kindEvt, Incoming: incoming, Ctx: &childCtx})

	childReq := &CallRequest{
		Target:   executeAs,
		Bytecode: code,
		Parcel:   childParcel,
		Tank:     hs.tank,
		FuelCap:  childCeiling,
		Height:   hs.req.Height,
		TxID:     hs.req.TxID,
		Vout:     hs.req.Vout,
		Kind:     kind,
	}
	result, err := h.Execute(childReq)
	if err != nil {
		childStore.Rollback()
		return StatusRevert, err
	}

	if result.Status != StatusOK {
		childStore.Rollback()
		hs.lastChildReturn = result.ReturnData
		return result.Status, nil
	}

	if commitErr := childStore.Commit(); commitErr != nil {
		return StatusRevert, nil
	}
	hs.lastChildReturn = result.ReturnData
	return StatusOK, nil
}

func decodeTransfers(payload []byte) ([]callctx.IncomingAlkane, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("vm: %w: truncated transfer list", errs.ErrInvalidHostCall)
	}
	count := binary.BigEndian.Uint32(payload[:4])
	off := 4
	out := make([]callctx.IncomingAlkane, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+48 > len(payload) {
			return nil, fmt.Errorf("vm: %w: truncated transfer entry", errs.ErrInvalidHostCall)
		}
		id, err := alkanes.AlkaneIdFromBytes32(payload[off : off+32])
		if err != nil {
			return nil, err
		}
		amt, err := alkanes.U128FromBytesBE(payload[off+32 : off+48])
		if err != nil {
			return nil, err
		}
		out = append(out, callctx.IncomingAlkane{Id: id, Amount: amt})
		off += 48
	}
	return out, nil
}
