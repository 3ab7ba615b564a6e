// Package contracts defines the boundary between the AHI and the
// collaborators it never implements itself: the buffer pool, the B-tree
// cursor, and the data dictionary. Expressing them as interfaces keeps
// the AHI core (fold, arena, heuristic, ahi) unit-testable against an
// in-memory fake (see contracts/fake) instead of a real storage engine.
package contracts

import (
	"context"
	"sync"

	"github.com/outofforest/ahi/types"
)

// Frame is a raw, page-sized memory region handed out by the buffer
// pool. The AHI never owns memory directly; every arena slab is backed
// by a Frame.
type Frame struct {
	Addr  types.RecAddr
	Bytes []byte
}

// BufferPool is the subset of buffer-pool behaviour the AHI depends on.
type BufferPool interface {
	// AllocSlab reserves one page-sized frame for AHI arena use. It may
	// block or suspend the caller (page eviction, I/O); callers MUST
	// invoke it outside any partition latch.
	AllocSlab(ctx context.Context) (Frame, error)

	// FreeSlab returns a frame that is no longer referenced by any live
	// arena node.
	FreeSlab(Frame)

	// BlockFromAddr derives the owning block from an address inside a
	// resident page frame, such as a record address. It is how
	// the AHI turns a node's bare RecAddr back into a page during
	// lookup, without ever storing a block pointer on the node itself.
	BlockFromAddr(addr types.RecAddr) (Block, bool)

	// PageHashCell returns the lock guarding the buffer pool's own
	// page-identity hash cell for pageID, used to atomize the
	// "is this block still the one I think it is" check during lookup.
	PageHashCell(pageID uint64) *sync.RWMutex

	// Blocks iterates every currently resident block. Disable walks it
	// once, under the dictionary freeze, to clear every block's AHI
	// metadata; the walk is cancellable, so the iterator should stop
	// early once its callback returns false.
	Blocks() func(func(Block) bool)
}

// Block is a resident buffer-pool page frame as seen by the AHI.
type Block interface {
	RLock()
	RUnlock()
	Lock()
	Unlock()
	TryRLock() bool
	TryLock() bool

	// State is the buffer-pool residency state machine.
	State() types.BlockState
	// Resident reports whether the block is fixed and usable right now.
	Resident() bool

	// PageID identifies the block for PageHashCell purposes.
	PageID() uint64
	// Base is the address of the first byte of the page.
	Base() types.RecAddr
	// PageSize is the size in bytes of the page.
	PageSize() int
	// RecordCount is the number of user records currently on the page.
	RecordCount() uint32

	// Index returns the index id this block is currently hashed for.
	Index() (types.IndexID, bool)
	// SetIndex installs or clears the owning index id.
	SetIndex(id types.IndexID, ok bool)
	// Info returns the per-page AHI metadata.
	Info() *types.BlockInfo

	// Records iterates the page's user records in logical (key) order,
	// yielding each record's address and a view onto its fields. The
	// iteration skips infimum/supremum sentinels and any hidden system
	// record; callers never see them.
	Records() func(func(types.RecAddr, RecordReader) bool)

	// RecordAt re-reads a single record for validation, given its
	// address. Used by guess_on_hash's check_guess step.
	RecordAt(addr types.RecAddr) (RecordReader, bool)
	// Previous/Next return the record immediately before/after addr in
	// logical order. ok is false when that neighbour would be the page's
	// infimum/supremum sentinel rather than a real user record; callers
	// then consult HasPrev/HasNext to decide whether falling off the
	// sentinel means "no such record" or "ask the sibling page".
	Previous(addr types.RecAddr) (types.RecAddr, RecordReader, bool)
	Next(addr types.RecAddr) (types.RecAddr, RecordReader, bool)
	// HasPrev / HasNext report whether the page itself has a left/right
	// sibling, needed when a neighbour lookup falls off a sentinel.
	HasPrev() bool
	HasNext() bool

	// Compare orders tuple against rec the way the owning index's key
	// comparator would, and additionally reports match, the number of
	// leading fields the two agreed on. guess_on_hash's check_guess step
	// uses both cmp and match to confirm a hash hit actually corresponds
	// to the tuple it was looked up for, and to what depth.
	Compare(tuple, rec RecordReader) (cmp int, match int)
}

// FieldView is one field's contribution to a fold computation.
type FieldView struct {
	Null     bool
	Bytes    []byte
	FixedLen int // >0 for fixed-length columns (even when Null, under LayoutLegacy)
}

// RecordReader is implemented by both physical records on a page and by
// logical search tuples, so fold.FoldRecord and fold.FoldTuple can share
// one walking algorithm: both must agree for a logically-equal
// record/tuple pair.
type RecordReader interface {
	NumFields() int
	Field(i int) FieldView
	Layout() types.Layout
}

// Index is the dictionary's view of one index, as the AHI needs it.
type Index struct {
	ID              types.IndexID
	UniquePrefixLen uint16
	Freed           bool
	Search          *types.SearchInfo
}

// Dictionary is the subset of data-dictionary behaviour the disable
// path depends on to shut the AHI down safely.
type Dictionary interface {
	// Freeze prevents indexes from being created or dropped concurrently
	// with a full disable-time walk.
	Freeze()
	Unfreeze()
	// Indexes lists every index currently known to the dictionary,
	// including ones pending lazy-free.
	Indexes() []*Index
}

// Cursor is the subset of B-tree cursor state the AHI reads and writes.
// It travels by value between the B-tree and the AHI on every
// positioning.
type Cursor struct {
	// UpMatch/LowMatch are the number of leading fields (and
	// UpBytes/LowBytes further bytes of the next field) that matched
	// the upper/lower bound of the last B-tree search.
	UpMatch, LowMatch int
	UpBytes, LowBytes int

	NFields uint16
	NBytes  uint16

	Fold Fold
	Flag types.CursorFlag
	Rec  types.RecAddr
}

// Fold is re-exported for call-site brevity; it is identical to types.Fold.
type Fold = types.Fold
