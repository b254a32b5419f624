// Package sync implements the C8 sync engine (spec.md §4.9): a
// single-consumer polling loop that advances the indexer one block at a
// time, detects and rolls back reorgs, and retries with backoff on
// failure without ever half-committing a block. Grounded on the teacher's
// core/replication.go poll-and-apply loop, generalized from "replicate
// ledger deltas from peers" to "pull blocks from a node adapter and index
// them through the runtime".
package sync

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"alkanes/internal/nodeadapter"
	"alkanes/internal/runtime"
	"alkanes/internal/storeadapter"
)

// MaxReorgDepth caps how far back a single detected reorg rolls back:
// detectAndHandleReorg clamps its rollback target to at most this many
// blocks below the current height; it does not return an error for a
// deeper reorg (spec.md §4.9 Open Question, resolved in DESIGN.md "Reorg
// depth bound").
const MaxReorgDepth = 1008

// moduleCacheRefreshInterval is how many successfully indexed blocks pass
// between proactive runtime.refresh_memory() calls (spec.md §4.9 "call
// refresh_memory periodically").
const moduleCacheRefreshInterval = 500

// Metrics are the Prometheus series the sync loop publishes (spec.md §7
// "Metrics", carried as an ambient concern despite the JSON-RPC transport
// itself being out of scope).
type Metrics struct {
	tipHeight     prometheus.Gauge
	indexedHeight prometheus.Gauge
	blocksIndexed prometheus.Counter
	reorgs        prometheus.Counter
}

// NewMetrics registers the sync engine's series against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tipHeight:     factory.NewGauge(prometheus.GaugeOpts{Name: "alkanes_sync_tip_height", Help: "Node-reported chain tip height."}),
		indexedHeight: factory.NewGauge(prometheus.GaugeOpts{Name: "alkanes_sync_indexed_height", Help: "Last height fully indexed."}),
		blocksIndexed: factory.NewCounter(prometheus.CounterOpts{Name: "alkanes_sync_blocks_indexed_total", Help: "Blocks successfully indexed."}),
		reorgs:        factory.NewCounter(prometheus.CounterOpts{Name: "alkanes_sync_reorgs_total", Help: "Reorgs detected and rolled back."}),
	}
}

// Engine is the C8 polling loop.
type Engine struct {
	node    nodeadapter.NodeAdapter
	store   storeadapter.StorageAdapter
	runtime *runtime.Adapter

	pollInterval time.Duration
	metrics      *Metrics
	log          *logrus.Entry

	sinceRefresh int
	retry        *backoff.ExponentialBackOff
}

// New builds a sync Engine. pollInterval is how long to sleep once
// indexed height has caught up to the node's tip (spec.md §4.9 "if
// indexed == tip, sleep... and loop").
func New(node nodeadapter.NodeAdapter, store storeadapter.StorageAdapter, rt *runtime.Adapter, pollInterval time.Duration, metrics *Metrics) *Engine {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0
	return &Engine{
		node:         node,
		store:        store,
		runtime:      rt,
		pollInterval: pollInterval,
		metrics:      metrics,
		log:          logrus.WithField("component", "sync"),
		retry:        retry,
	}
}

// Run drives the loop until ctx is cancelled. A cancellation mid-step
// finishes the in-flight block (the indexer never half-commits, spec.md
// §5 "shutdown ... finishes in-flight block... then exits") before Run
// observes ctx.Done and returns.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.step(ctx); err != nil {
			e.log.WithError(err).Warn("sync step failed, retrying with backoff")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.retry.NextBackOff()):
			}
			continue
		}
		e.retry.Reset()
	}
}

// step advances the indexer by at most one block, per spec.md §4.9's
// state machine.
func (e *Engine) step(ctx context.Context) error {
	if !e.node.IsConnected(ctx) {
		return fmt.Errorf("sync: node adapter not connected")
	}

	tipHeight, err := e.node.GetTipHeight(ctx)
	if err != nil {
		return fmt.Errorf("sync: get tip height: %w", err)
	}
	e.metrics.tipHeight.Set(float64(tipHeight))

	indexed, err := e.store.GetIndexedHeight()
	if err != nil {
		return fmt.Errorf("sync: get indexed height: %w", err)
	}
	e.metrics.indexedHeight.Set(float64(indexed))

	if indexed >= tipHeight {
		select {
		case <-ctx.Done():
		case <-time.After(e.pollInterval):
		}
		return nil
	}

	h := indexed + 1
	blockBytes, err := e.node.GetBlockData(ctx, h)
	if err != nil {
		return fmt.Errorf("sync: get block data at height %d: %w", h, err)
	}

	var blk wire.MsgBlock
	if err := blk.Deserialize(bytes.NewReader(blockBytes)); err != nil {
		return fmt.Errorf("sync: decode block at height %d: %w", h, err)
	}

	if h > 0 {
		reorged, err := e.detectAndHandleReorg(h, blk)
		if err != nil {
			return err
		}
		if reorged {
			return nil
		}
	}

	blockHash := [32]byte(blk.BlockHash())
	_, err = e.runtime.ProcessBlockAtomic(h, blockBytes, blockHash)
	if err != nil {
		return fmt.Errorf("sync: index block at height %d: %w", h, err)
	}

	if err := e.store.StoreBlockHash(h, blockHash); err != nil {
		return fmt.Errorf("sync: store block hash at height %d: %w", h, err)
	}
	if err := e.store.SetIndexedHeight(h); err != nil {
		return fmt.Errorf("sync: set indexed height to %d: %w", h, err)
	}

	e.metrics.blocksIndexed.Inc()
	e.metrics.indexedHeight.Set(float64(h))

	e.sinceRefresh++
	if e.sinceRefresh >= moduleCacheRefreshInterval {
		e.runtime.RefreshMemory()
		e.sinceRefresh = 0
	}

	return nil
}

// detectAndHandleReorg compares blk's parent hash against the hash stored
// for h-1; on mismatch it rolls back to h-2 (clamped to MaxReorgDepth) and
// reports true so the caller re-enters the loop rather than indexing a
// block that descends from a now-orphaned parent (spec.md §4.9 "mismatch
// => reorg").
func (e *Engine) detectAndHandleReorg(h uint32, blk wire.MsgBlock) (bool, error) {
	storedParent, ok, err := e.store.GetBlockHash(h - 1)
	if err != nil {
		return false, fmt.Errorf("sync: get stored block hash at height %d: %w", h-1, err)
	}
	if !ok {
		return false, nil
	}
	parentHash := [32]byte(blk.Header.PrevBlock)
	if parentHash == storedParent {
		return false, nil
	}

	e.log.WithField("height", h).Warn("reorg detected, rolling back")
	e.metrics.reorgs.Inc()

	rollbackTo := uint32(0)
	if h >= 2 {
		rollbackTo = h - 2
	}
	if h-rollbackTo > MaxReorgDepth {
		rollbackTo = h - MaxReorgDepth
	}
	// The runtime's rollback must land first: it restores the SMT root/
	// heights index, balance sheets, deployed bytecode and the sequence
	// counter, all of which the storage adapter's own bookkeeping keys
	// (block hash, indexed height) are derived from.
	if err := e.runtime.RollbackToHeight(rollbackTo); err != nil {
		return false, fmt.Errorf("sync: runtime rollback to height %d: %w", rollbackTo, err)
	}
	if err := e.store.RollbackToHeight(rollbackTo); err != nil {
		return false, fmt.Errorf("sync: rollback to height %d: %w", rollbackTo, err)
	}
	return true, nil
}
