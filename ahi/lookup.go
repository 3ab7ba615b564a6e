package ahi

import (
	"context"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/fold"
	"github.com/outofforest/ahi/types"
)

// minRecord is implemented by a tuple that represents the reserved
// "minimum record" placeholder, which guess_on_hash must never
// consider a match. Most tuples don't implement it, in which case the
// check is skipped.
type minRecord interface {
	IsMinRecord() bool
}

// GuessOnHash implements guess_on_hash: the hash-index fast path for
// cursor positioning. It returns true on a validated hit. When a
// precondition fails (latch mode, no recent success or zero potential,
// too few tuple fields, minimum-record tuple) it returns false without
// touching the cursor or the search info; every later failure returns
// false and sets cursor.Flag = HashFail.
func (ix *Index) GuessOnHash(
	ctx context.Context,
	tuple contracts.RecordReader,
	mode types.Mode,
	latchMode types.LatchMode,
	cursor *contracts.Cursor,
) bool {
	_ = ctx // no suspension points on this path; carried for API symmetry with Build/Drop
	pool := ix.global.pool
	info := ix.Def.Search

	fail := func() bool {
		cursor.Flag = types.FlagHashFail
		info.SetLastHashSucc(false)
		info.NHashFail.Add(1)
		return false
	}

	if latchMode != types.LatchShared && latchMode != types.LatchExclusive {
		return false
	}
	if !info.LastHashSucc() || info.Potential() == 0 {
		return false
	}

	shape := info.Recommendation()
	needFields := int(shape.NFields)
	if shape.NBytes > 0 {
		needFields++
	}
	if tuple.NumFields() < needFields {
		return false
	}
	if mr, ok := tuple.(minRecord); ok && mr.IsMinRecord() {
		return false
	}

	// Step 1.
	f := fold.FoldTuple(ix.seed(), tuple, shape.NFields, shape.NBytes)
	cursor.Fold = f
	cursor.Flag = types.FlagHash

	partition := ix.global.Partition()
	if partition == nil {
		return fail()
	}

	// Step 2-3: shared latch, disabled check, lookup.
	partition.Latch().RLock()
	if !partition.Enabled() {
		partition.Latch().RUnlock()
		return fail()
	}
	rec, found := partition.Lookup(f)
	if !found {
		partition.Latch().RUnlock()
		return fail()
	}

	// Step 4: derive the owning block.
	block, ok := pool.BlockFromAddr(rec)
	if !ok {
		partition.Latch().RUnlock()
		return fail()
	}

	// Step 5: non-blocking page latch, under the page-hash cell's shared
	// lock, to atomize "is this block still the one I think it is".
	cell := pool.PageHashCell(block.PageID())
	cell.RLock()
	var gotLatch bool
	if latchMode == types.LatchShared {
		gotLatch = block.TryRLock()
	} else {
		gotLatch = block.TryLock()
	}
	cell.RUnlock()
	if !gotLatch {
		partition.Latch().RUnlock()
		return fail()
	}

	release := func() {
		if latchMode == types.LatchShared {
			block.RUnlock()
		} else {
			block.Unlock()
		}
	}

	// Step 6: validate block state and index identity.
	if !block.Resident() || block.State() == types.BlockRemoveHash || block.State() == types.BlockFreed {
		release()
		partition.Latch().RUnlock()
		return fail()
	}
	if id, ok := block.Index(); !ok || id != ix.Def.ID {
		release()
		partition.Latch().RUnlock()
		return fail()
	}

	// Step 7: fix done implicitly by holding the page latch; release the
	// partition latch now that the block is pinned by its own latch.
	partition.Latch().RUnlock()

	cursor.Rec = rec

	// Step 8-9: validate the guess against the live page.
	if !checkGuess(block, tuple, mode, rec, ix.Def.UniquePrefixLen, cursor) {
		release()
		return fail()
	}

	info.IncPotential(ix.global.cfg.BuildPotentialLimit + 5)
	info.SetLastHashSucc(true)
	info.NHashSucc.Add(1)
	release()
	return true
}

// UpdateHashRef implements update_hash_ref: the lazy repair step called
// once the B-tree fallback has resolved the record a failed
// GuessOnHash should have found. If the page is still hashed under
// this index, it writes the correct (fold, rec) entry back into the
// hash table, fixing both a fold collision and a stale post-delete
// entry with the same write. A later GuessOnHash for the same tuple
// then hits instead of repeating the miss.
func (ix *Index) UpdateHashRef(block contracts.Block, tuple contracts.RecordReader, rec types.RecAddr) {
	partition := ix.global.Partition()
	if partition == nil {
		return
	}

	partition.Latch().Lock()
	defer partition.Latch().Unlock()

	if !partition.Enabled() {
		return
	}
	id, ok := block.Index()
	if !ok || id != ix.Def.ID {
		return
	}
	shape := block.Info().InstalledShape()
	if shape.IsZero() {
		return
	}

	f := fold.FoldTuple(ix.seed(), tuple, shape.NFields, shape.NBytes)
	if partition.Insert(f, rec) {
		block.Info().NPointers.Add(1)
	}
}

// checkGuess implements btr_search_check_guess (grounded on the
// original source's btr0sea.cc): re-read the record the hash pointed
// at under the page latch we now hold, and confirm it is truly the
// record `mode` would have positioned on for `tuple`.
func checkGuess(
	block contracts.Block,
	tuple contracts.RecordReader,
	mode types.Mode,
	addr types.RecAddr,
	uniquePrefixLen uint16,
	cursor *contracts.Cursor,
) bool {
	rec, ok := block.RecordAt(addr)
	if !ok {
		return false
	}

	cmp, match := block.Compare(tuple, rec)

	switch mode {
	case types.ModeGE:
		if cmp > 0 {
			return false
		}
		cursor.UpMatch = match
		if match >= int(uniquePrefixLen) {
			return true
		}
	case types.ModeLE:
		if cmp < 0 {
			return false
		}
		cursor.LowMatch = match
	case types.ModeG:
		if cmp >= 0 {
			return false
		}
	case types.ModeL:
		if cmp <= 0 {
			return false
		}
	}

	if mode == types.ModeG || mode == types.ModeGE {
		_, prevRec, ok := block.Previous(addr)
		if !ok {
			// addr's predecessor is the page's infimum sentinel: only a
			// match if there is no left sibling page to fall back into.
			return !block.HasPrev()
		}
		cmp, _ := block.Compare(tuple, prevRec)
		if mode == types.ModeGE {
			return cmp > 0
		}
		return cmp >= 0
	}

	_, nextRec, ok := block.Next(addr)
	if !ok {
		if !block.HasNext() {
			cursor.UpMatch = 0
			return true
		}
		return false
	}
	cmp2, match2 := block.Compare(tuple, nextRec)
	if mode == types.ModeLE {
		cursor.UpMatch = match2
		return cmp2 < 0
	}
	return cmp2 <= 0
}
