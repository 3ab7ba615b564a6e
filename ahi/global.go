package ahi

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/ahi/arena"
	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/heuristic"
)

// Global is the single adaptive hash index instance for a buffer pool.
// It owns the partition (hash table + arena) and the tuner thresholds,
// and is the entry point for every index build/drop, lookup and
// lifecycle operation.
type Global struct {
	cfg   Config
	pool  contracts.BufferPool
	dict  contracts.Dictionary
	tuner heuristic.Tuner

	mu        sync.Mutex // lifecycle only: Enable/Disable never run concurrently with each other
	partition atomic.Pointer[arena.Partition]
	enabled   atomic.Bool
}

// Partition returns the live partition, or nil while disabled. Hot
// paths (Build/Drop/GuessOnHash) read it without taking g.mu.
func (g *Global) Partition() *arena.Partition { return g.partition.Load() }

// NewGlobal constructs a disabled Global. Call EnableGlobal to allocate
// the hash table and start accepting traffic: a freshly constructed
// AHI does nothing until explicitly enabled.
func NewGlobal(pool contracts.BufferPool, dict contracts.Dictionary, cfg Config) *Global {
	cfg = cfg.withDefaults()
	return &Global{
		cfg:  cfg,
		pool: pool,
		dict: dict,
		tuner: heuristic.Tuner{
			BuildPerPageLimit:   cfg.BuildPerPageLimit,
			BuildPotentialLimit: cfg.BuildPotentialLimit,
		},
	}
}

// Enabled reports whether the index currently accepts operations.
func (g *Global) Enabled() bool { return g.enabled.Load() }

// EnableGlobal allocates the hash table (sized roughly as
// buffer_pool_bytes / pointer_size / 64 cells) and starts accepting
// traffic.
func (g *Global) EnableGlobal(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.enabled.Load() {
		return nil
	}

	nCells := g.cfg.hashTableCells()
	partition := arena.NewPartition(g.pool, nCells)
	if err := partition.PrepareInsert(ctx); err != nil {
		return errors.Wrap(err, "preparing spare slab for new partition")
	}

	g.partition.Store(partition)
	g.enabled.Store(true)
	partition.SetEnabled(true)

	if log := logger.Get(ctx); log != nil {
		log.Info("ahi enabled")
	}
	return nil
}

// DisableGlobal purges every AHI entry. It
// freezes the dictionary so the resident-block walk below cannot race
// against concurrent index creation/drop, then clears every block's
// AHI metadata and zeroes every index's ref count. It runs as a single
// supervised, cancellable worker (parallel.Run/parallel.SpawnFn,
// mirroring alloc.State.Run) since walking every resident block under
// load is itself a coordinated background task, not an instantaneous
// one.
func (g *Global) DisableGlobal(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled.Load() {
		return nil
	}

	g.dict.Freeze()
	defer g.dict.Unfreeze()

	partition := g.partition.Load()
	partition.Latch().Lock()
	g.enabled.Store(false)
	partition.SetEnabled(false)
	partition.Latch().Unlock()

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("disableWorker", parallel.Fail, func(ctx context.Context) error {
			return g.disableWorker(ctx, partition)
		})
		return nil
	})
}

func (g *Global) disableWorker(ctx context.Context, partition *arena.Partition) error {
	dropped := 0
	for block := range iterCancellable(ctx, g.pool.Blocks()) {
		if id, ok := block.Index(); ok {
			block.SetIndex(id, false)
			dropped++
		}
		block.Info().Reset()
	}
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	for _, ix := range g.dict.Indexes() {
		ix.Search.ResetRef()
		if ix.Freed {
			g.lazyFree(ctx, ix)
		}
	}

	partition.Reset()
	g.partition.Store(nil)

	if log := logger.Get(ctx); log != nil {
		log.Info("ahi disabled", zap.Int("blocks_cleared", dropped))
	}
	return nil
}

// iterCancellable adapts a push-style func(func(T) bool) iterator into
// a range-over-channel form so the disable walker can select on
// ctx.Done() between blocks, yielding cooperatively so a long walk can
// be killed.
func iterCancellable[T any](ctx context.Context, seq func(func(T) bool)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		seq(func(v T) bool {
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}

// lazyFree releases a dictionary index's AHI-side bookkeeping once its
// last hashed page is gone. The dictionary itself owns splicing the
// index out of its table's freed-index list;
// this is the notification hook for that, fired exactly when ref_count
// reaches zero for an index already marked freed.
func (g *Global) lazyFree(ctx context.Context, ix *contracts.Index) {
	if log := logger.Get(ctx); log != nil {
		log.Info("ahi lazy-free", zap.Uint64("index_id", uint64(ix.ID)))
	}
}

// maybeLazyFree is called after any ref-count decrement that might
// have just hit zero on a freed index (page drop). Disable calls
// lazyFree directly for every freed index.
func (g *Global) maybeLazyFree(ctx context.Context, ix *contracts.Index) {
	if ix.Freed && ix.Search.RefCount() == 0 {
		g.lazyFree(ctx, ix)
	}
}

// Validate walks the live hash table checking its structural
// invariants (chain reachability, slab density, cell placement) in a
// supervised worker. Cancellation of ctx is checked once, before the
// walk starts; the walk itself does not yield or release locks part
// way through. It is a diagnostic, never called on a hot path.
func (g *Global) Validate(ctx context.Context) error {
	partition := g.partition.Load()
	if partition == nil {
		return nil
	}
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("validate", parallel.Fail, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			return partition.CheckInvariants()
		})
		return nil
	})
}

// ResidentIndexes returns the subset of the dictionary's indexes that
// currently carry at least one hashed page, for diagnostics and tests
// that want to report live AHI usage without walking every block.
func (g *Global) ResidentIndexes() []*contracts.Index {
	return lo.Filter(g.dict.Indexes(), func(ix *contracts.Index, _ int) bool {
		return ix.Search.RefCount() > 0
	})
}
