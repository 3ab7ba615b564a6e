package ahi

import (
	"context"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/fold"
	"github.com/outofforest/ahi/heuristic"
	"github.com/outofforest/ahi/types"
)

// Index binds a dictionary index handle to the Global it is hashed
// under, giving it the Build/Drop/Move/InsertAtCursor/DeleteAtCursor
// operations of page build, drop, split-time migration and
// single-record update.
type Index struct {
	global *Global
	Def    *contracts.Index
}

// Bind returns the Index view of a dictionary-owned index handle.
func (g *Global) Bind(def *contracts.Index) *Index {
	return &Index{global: g, Def: def}
}

func (ix *Index) seed() uint32 { return fold.Seed(ix.Def.ID) }

type foldEntry struct {
	fold types.Fold
	rec  types.RecAddr
}

// collectFolds walks a page's records in logical order (Block.Records
// already skips infimum/supremum sentinels and hidden metadata
// records), computing the fold sequence and deduplicating consecutive
// equal folds: left_side keeps the first record of each run,
// right_side keeps the last (including the run that falls off the
// end of the page).
func collectFolds(block contracts.Block, seed uint32, shape types.Shape) []foldEntry {
	var entries []foldEntry
	var run types.Fold
	haveRun := false
	var pendingRec types.RecAddr
	havePending := false

	flush := func() {
		if havePending {
			entries = append(entries, foldEntry{fold: run, rec: pendingRec})
			havePending = false
		}
	}

	for addr, rec := range block.Records() {
		f := fold.FoldRecord(seed, rec, shape.NFields, shape.NBytes)
		if !haveRun || f != run {
			flush()
			run = f
			haveRun = true
			if shape.LeftSide {
				entries = append(entries, foldEntry{fold: f, rec: addr})
			} else {
				pendingRec = addr
				havePending = true
			}
		} else if !shape.LeftSide {
			pendingRec = addr
			havePending = true
		}
	}
	flush()
	return entries
}

// validShape checks that a prefix shape names a usable, unique-enough
// key: at least one field or byte, and no deeper than the index's
// unique prefix.
func validShape(shape types.Shape, uniquePrefixLen uint16) bool {
	if shape.NFields == 0 && shape.NBytes == 0 {
		return false
	}
	need := shape.NFields
	if shape.NBytes > 0 {
		need++
	}
	return need <= uniquePrefixLen
}

// ObserveCursor implements the self-tuning build loop: the entry point
// every B-tree cursor positioning that did not itself come from the
// hash index feeds into. It folds the cursor's match depth into this
// index's search heuristic (update_hash_info_from_cursor), updates the
// page's help counter against the resulting recommendation
// (update_block_hash_info), and builds -- or rebuilds -- the page's
// hash index the moment the heuristic says it has paid off enough to
// justify it. It returns true exactly when a build happened.
func (ix *Index) ObserveCursor(ctx context.Context, block contracts.Block, cursor contracts.Cursor) bool {
	g := ix.global
	if !g.Enabled() {
		return false
	}

	info := ix.Def.Search
	g.tuner.UpdateFromCursor(info, ix.Def.UniquePrefixLen, heuristic.CursorObservation{
		LowMatch: cursor.LowMatch,
		LowBytes: cursor.LowBytes,
		UpMatch:  cursor.UpMatch,
		UpBytes:  cursor.UpBytes,
	})

	if !g.tuner.UpdateBlock(block.Info(), info, block.RecordCount()) {
		return false
	}
	return ix.Build(ctx, block, info.Recommendation())
}

// Build implements build_page_hash_index. It returns true if the
// page ends up hashed with shape after the call.
func (ix *Index) Build(ctx context.Context, block contracts.Block, shape types.Shape) bool {
	g := ix.global
	partition := g.Partition()
	if partition == nil {
		return false
	}

	// Step 1: a different shape is already installed -> drop first.
	partition.Latch().RLock()
	_, hasIndex := block.Index()
	installed := block.Info().InstalledShape()
	needsDrop := hasIndex && installed != shape
	partition.Latch().RUnlock()
	if needsDrop {
		ix.Drop(ctx, block, false)
	}

	// Step 2: sanity-check shape.
	if !validShape(shape, ix.Def.UniquePrefixLen) {
		return false
	}

	// Step 3: walk the page and compute the deduplicated fold list.
	entries := collectFolds(block, ix.seed(), shape)

	// Step 4: prepare a spare slab outside any latch, then install.
	if err := partition.PrepareInsert(ctx); err != nil {
		return false
	}

	partition.Latch().Lock()
	defer partition.Latch().Unlock()

	if !partition.Enabled() {
		return false
	}
	_, curHasIndex := block.Index()
	curInstalled := block.Info().InstalledShape()
	if curHasIndex && curInstalled != shape {
		// Lost the race: someone rebuilt with yet another shape while we
		// were off the latch. Bail out; the caller's heuristic will ask
		// again on a future cursor positioning.
		return false
	}
	if !curHasIndex {
		ix.Def.Search.IncRef()
	}

	block.Info().SetInstalledShape(shape)
	block.SetIndex(ix.Def.ID, true)
	block.Info().SetHashHelps(0)

	for _, e := range entries {
		if partition.Insert(e.fold, e.rec) {
			block.Info().NPointers.Add(1)
		}
	}
	return true
}

// Drop implements drop_page_hash_index. garbageCollectOnly: when
// true, a block whose index is not marked freed is left alone (this
// call only exists to reclaim already-freed indexes during eviction).
//
// A literal port would snapshot the page's fold sequence under a
// shared latch so the exclusive critical section that follows is
// short. arena.Partition.RemoveAllForPage already removes every node
// addressing the page in one exclusive-latched pass keyed on the
// page's address range rather than per fold, which gives the same
// result without needing a fold snapshot at all -- so the shared-latch
// pass here only reads the block's owning index id (and applies
// garbageCollectOnly), and the exclusive pass re-checks that the id is
// unchanged before removing. The installed shape is not compared.
func (ix *Index) Drop(ctx context.Context, block contracts.Block, garbageCollectOnly bool) {
	g := ix.global
	partition := g.Partition()
	if partition == nil {
		return
	}

	partition.Latch().RLock()
	id, ok := block.Index()
	if !ok {
		partition.Latch().RUnlock()
		return
	}
	if garbageCollectOnly && !ix.Def.Freed {
		partition.Latch().RUnlock()
		return
	}
	partition.Latch().RUnlock()

	partition.Latch().Lock()
	curID, curOK := block.Index()
	if !curOK || curID != id {
		partition.Latch().Unlock()
		return
	}

	removed := partition.RemoveAllForPage(block.Base(), block.PageSize())
	if pointers := block.Info().NPointers.Load(); pointers >= uint32(removed) {
		block.Info().NPointers.Store(pointers - uint32(removed))
	} else {
		block.Info().NPointers.Store(0)
	}

	block.SetIndex(id, false)
	block.Info().Reset()
	partition.Latch().Unlock()

	ix.Def.Search.DecRef()
	g.maybeLazyFree(ctx, ix.Def)
}

// Move implements move_or_delete_hash_entries: called with both pages
// already x-latched by the caller during a split.
func (ix *Index) Move(ctx context.Context, newBlock, oldBlock contracts.Block) {
	if _, ok := newBlock.Index(); ok {
		ix.Drop(ctx, oldBlock, false)
		return
	}
	if _, ok := oldBlock.Index(); !ok {
		return
	}
	shape := oldBlock.Info().InstalledShape()
	newBlock.Info().SetCandidateShape(shape)
	ix.Build(ctx, newBlock, shape)
}

// InsertAtCursor implements the single-record insert-time hash-index
// update. cameFromHash reports whether
// the cursor reached its position via the hash index with the
// currently installed shape; prev/next may be the zero value when the
// insert happened at a page edge.
func (ix *Index) InsertAtCursor(
	block contracts.Block,
	cameFromHash bool,
	oldRec, newRec types.RecAddr,
	prev, cur, next contracts.RecordReader,
	prevAddr, curAddr, nextAddr types.RecAddr,
	havePrev, haveNext bool,
) {
	partition := ix.global.Partition()
	if partition == nil {
		return
	}
	shape := block.Info().InstalledShape()
	if shape.IsZero() {
		return
	}

	partition.Latch().Lock()
	defer partition.Latch().Unlock()

	if cameFromHash && !shape.LeftSide {
		partition.UpdateIfFound(fold.FoldRecord(ix.seed(), cur, shape.NFields, shape.NBytes), oldRec, newRec)
		return
	}

	seed := ix.seed()
	curFold := fold.FoldRecord(seed, cur, shape.NFields, shape.NBytes)

	if havePrev {
		prevFold := fold.FoldRecord(seed, prev, shape.NFields, shape.NBytes)
		if prevFold != curFold && shape.LeftSide {
			partition.Insert(curFold, curAddr)
		}
	}
	if haveNext {
		nextFold := fold.FoldRecord(seed, next, shape.NFields, shape.NBytes)
		if nextFold != curFold && !shape.LeftSide {
			partition.Insert(curFold, curAddr)
		}
	}
	if (!havePrev && shape.LeftSide) || (!haveNext && !shape.LeftSide) {
		partition.Insert(curFold, curAddr)
	}
}

// DeleteAtCursor implements the single-record delete-time hash-index
// update: erase whatever entry the about-to-be-deleted record owns
// under the installed shape. A stale survivor pointing at the wrong
// record of an equal-fold run is acceptable; a later failed lookup
// lazily repairs it.
func (ix *Index) DeleteAtCursor(block contracts.Block, rec contracts.RecordReader, addr types.RecAddr) {
	partition := ix.global.Partition()
	if partition == nil {
		return
	}
	shape := block.Info().InstalledShape()
	if shape.IsZero() {
		return
	}
	f := fold.FoldRecord(ix.seed(), rec, shape.NFields, shape.NBytes)

	partition.Latch().Lock()
	defer partition.Latch().Unlock()
	partition.Erase(f, addr)
}
