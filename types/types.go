// Package types holds the data shared by every AHI component: fold
// values, record addresses, prefix shapes and the racy counters the
// search heuristic keeps per index and per page.
package types

import "sync/atomic"

// Fold is the 32-bit fingerprint of a key prefix.
type Fold uint32

// RecAddr is an opaque address pointing inside a buffer-pool page frame.
// It is never dereferenced by this module; the owning block is always
// derived from it through contracts.BufferPool.BlockFromAddr.
type RecAddr uintptr

// IndexID identifies a dictionary index.
type IndexID uint64

// Mode enumerates the comparison modes a cursor search can request.
type Mode uint8

// Mode values.
const (
	ModeG Mode = iota
	ModeGE
	ModeL
	ModeLE
)

// CursorFlag records how a cursor reached its current position.
type CursorFlag uint8

// CursorFlag values.
const (
	FlagNormal CursorFlag = iota
	FlagHash
	FlagHashFail
)

// BlockState is the buffer-pool residency state of a block, as seen by
// the AHI. The buffer pool owns the authoritative state machine; this is
// the subset the AHI needs to reason about.
type BlockState uint8

// BlockState values.
const (
	BlockUnfixed BlockState = iota
	BlockReadFix
	BlockWriteFix
	BlockRemoveHash
	BlockFreed
)

// LatchMode is the leaf-page latch mode requested by a cursor search.
type LatchMode uint8

// LatchMode values.
const (
	LatchShared LatchMode = iota
	LatchExclusive
)

// Shape is a hashed prefix: how many leading fields and bytes of the key
// define the fold, and which side of a run of equal folds the hash entry
// anchors to.
type Shape struct {
	NFields  uint16
	NBytes   uint16
	LeftSide bool
}

// IsZero reports whether the shape names no prefix at all.
func (s Shape) IsZero() bool {
	return s.NFields == 0 && s.NBytes == 0
}

// Layout is the physical record layout a RecordReader exposes. NULL
// columns contribute differently to the fold depending on which layout
// the owning table uses.
type Layout uint8

// Layout values.
const (
	LayoutCompact Layout = iota
	LayoutLegacy
)

// BlockInfo is the per-page AHI metadata attached to each resident
// buffer-pool block. Fields are read and written
// with sync/atomic rather than under a latch: the heuristic is
// deliberately racy, and a torn read only degrades a build decision, it
// never corrupts anything.
type BlockInfo struct {
	index       atomic.Uint64 // encodes (IndexID, hasIndex) - see Index()/SetIndex()
	currNFields atomic.Uint32
	currNBytes  atomic.Uint32
	currLeft    atomic.Bool
	nHashHelps  atomic.Uint32
	nFields     atomic.Uint32
	nBytes      atomic.Uint32
	left        atomic.Bool

	// NPointers is debug-only bookkeeping for invariant I5 (number of
	// hash nodes that point into this page). It is maintained even in
	// release builds because it is cheap. It is read by tests and by
	// page drop; CheckInvariants does not consult it.
	NPointers atomic.Uint32
}

const blockIndexSet = uint64(1) << 63

// Index returns the installed index id, if any.
func (b *BlockInfo) Index() (IndexID, bool) {
	v := b.index.Load()
	if v&blockIndexSet == 0 {
		return 0, false
	}
	return IndexID(v &^ blockIndexSet), true
}

// SetIndex installs (or, with ok=false, clears) the owning index id.
func (b *BlockInfo) SetIndex(id IndexID, ok bool) {
	if !ok {
		b.index.Store(0)
		return
	}
	b.index.Store(uint64(id) | blockIndexSet)
}

// InstalledShape returns the currently-built prefix shape.
func (b *BlockInfo) InstalledShape() Shape {
	return Shape{
		NFields:  uint16(b.currNFields.Load()),
		NBytes:   uint16(b.currNBytes.Load()),
		LeftSide: b.currLeft.Load(),
	}
}

// SetInstalledShape records the shape that was just built.
func (b *BlockInfo) SetInstalledShape(s Shape) {
	b.currNFields.Store(uint32(s.NFields))
	b.currNBytes.Store(uint32(s.NBytes))
	b.currLeft.Store(s.LeftSide)
}

// CandidateShape returns the shape currently being observed for this page.
func (b *BlockInfo) CandidateShape() Shape {
	return Shape{
		NFields:  uint16(b.nFields.Load()),
		NBytes:   uint16(b.nBytes.Load()),
		LeftSide: b.left.Load(),
	}
}

// SetCandidateShape records a new candidate shape being observed.
func (b *BlockInfo) SetCandidateShape(s Shape) {
	b.nFields.Store(uint32(s.NFields))
	b.nBytes.Store(uint32(s.NBytes))
	b.left.Store(s.LeftSide)
}

// HashHelps returns the current help counter.
func (b *BlockInfo) HashHelps() uint32 { return b.nHashHelps.Load() }

// SetHashHelps overwrites the help counter.
func (b *BlockInfo) SetHashHelps(v uint32) { b.nHashHelps.Store(v) }

// IncHashHelps bumps the help counter by one and returns the new value.
func (b *BlockInfo) IncHashHelps() uint32 { return b.nHashHelps.Add(1) }

// Reset clears all per-page AHI bookkeeping. Used by disable and by
// buffer-pool eviction once a page's entries have been dropped.
func (b *BlockInfo) Reset() {
	b.index.Store(0)
	b.currNFields.Store(0)
	b.currNBytes.Store(0)
	b.currLeft.Store(false)
	b.nHashHelps.Store(0)
	b.nFields.Store(0)
	b.nBytes.Store(0)
	b.left.Store(false)
	b.NPointers.Store(0)
}

// SearchInfo is the per-index heuristic state.
type SearchInfo struct {
	nHashPotential atomic.Uint32
	nFields        atomic.Uint32
	nBytes         atomic.Uint32
	left           atomic.Bool
	lastHashSucc   atomic.Bool
	refCount       atomic.Uint64

	// Debug-only success/failure counters. Kept outside any invariant,
	// cheap enough to maintain unconditionally, useful for tests and
	// for a future performance-schema-style exposition.
	NHashSucc atomic.Uint64
	NHashFail atomic.Uint64
}

// Recommendation returns the currently recommended prefix shape.
func (s *SearchInfo) Recommendation() Shape {
	return Shape{
		NFields:  uint16(s.nFields.Load()),
		NBytes:   uint16(s.nBytes.Load()),
		LeftSide: s.left.Load(),
	}
}

// SetRecommendation installs a new recommended shape.
func (s *SearchInfo) SetRecommendation(shape Shape) {
	s.nFields.Store(uint32(shape.NFields))
	s.nBytes.Store(uint32(shape.NBytes))
	s.left.Store(shape.LeftSide)
}

// Potential returns the saturating success streak.
func (s *SearchInfo) Potential() uint32 { return s.nHashPotential.Load() }

// SetPotential overwrites the success streak.
func (s *SearchInfo) SetPotential(v uint32) { s.nHashPotential.Store(v) }

// IncPotential bumps the success streak by one, saturating at max, and
// returns the new value.
func (s *SearchInfo) IncPotential(max uint32) uint32 {
	for {
		cur := s.nHashPotential.Load()
		if cur >= max {
			return cur
		}
		next := cur + 1
		if next > max {
			next = max
		}
		if s.nHashPotential.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// LastHashSucc returns whether the last lookup via the hash index succeeded.
func (s *SearchInfo) LastHashSucc() bool { return s.lastHashSucc.Load() }

// SetLastHashSucc records the outcome of the last hash-index lookup.
func (s *SearchInfo) SetLastHashSucc(v bool) { s.lastHashSucc.Store(v) }

// RefCount returns the number of pages currently hashed for this index.
func (s *SearchInfo) RefCount() uint64 { return s.refCount.Load() }

// IncRef increments the ref count and returns the new value.
func (s *SearchInfo) IncRef() uint64 { return s.refCount.Add(1) }

// DecRef decrements the ref count and returns the new value.
func (s *SearchInfo) DecRef() uint64 { return s.refCount.Add(^uint64(0)) }

// ResetRef zeroes the ref count, used by disable.
func (s *SearchInfo) ResetRef() { s.refCount.Store(0) }
