// Package arena implements the adaptive hash index's hash table and
// node arena: an open-chaining table whose
// chain nodes are bump-allocated from page-sized slabs, bundled with
// the latch and spare slab that make insert/erase O(1) and safe to run
// underneath a write-latched B-tree caller.
package arena

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/types"
)

// Partition bundles one table, one arena, one reader-writer latch and
// one spare slab. The design permits future sharding;
// today there is exactly one partition.
type Partition struct {
	table   *Table
	arena   *arena
	latch   sync.RWMutex
	arenaMu sync.Mutex
	enabled atomic.Bool
}

// NewPartition creates a partition with nCells chain-head cells,
// backed by pool for slab allocation.
func NewPartition(pool contracts.BufferPool, nCells uint32) *Partition {
	p := &Partition{
		table: newTable(nCells),
		arena: newArena(pool),
	}
	p.enabled.Store(true)
	return p
}

// Latch returns the reader-writer latch guarding table cells and node
// payloads. Every operation below documents which mode it assumes the
// caller already holds; Partition does not acquire it itself.
func (p *Partition) Latch() *sync.RWMutex { return &p.latch }

// ArenaMu is the leaf lock guarding the slab list, free_offset and the
// spare slab. Hold it only for arena-structural work, never while
// blocked on anything else.
func (p *Partition) ArenaMu() *sync.Mutex { return &p.arenaMu }

// Enabled reports whether the partition currently accepts operations.
func (p *Partition) Enabled() bool { return p.enabled.Load() }

// SetEnabled flips the enabled flag. Callers hold the write latch when
// disabling, to keep this consistent with the concurrent hot path.
func (p *Partition) SetEnabled(v bool) { p.enabled.Store(v) }

// NCells returns the number of hash-table cells.
func (p *Partition) NCells() uint32 { return p.table.NCells() }

// SlabCount reports the number of live slabs (tests and stats only).
func (p *Partition) SlabCount() int { return p.arena.slabCount() }

// PrepareInsert refills the spare slab if necessary, allocating from
// the buffer pool. It MUST be called before taking Latch(), never
// while holding it: buffer-pool allocation may suspend the caller.
func (p *Partition) PrepareInsert(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	p.arenaMu.Lock()
	defer p.arenaMu.Unlock()
	return p.arena.prepareSpare(ctx)
}

// Insert installs fold -> rec. If a node with an equal fold already
// exists in the cell's chain, its record is overwritten instead, so
// Insert never leaves two nodes of equal fold (InsertDistinct does).
// The write latch must be held by the caller. Returns true both when a
// node was added and when an existing one was overwritten; returns
// false if the insertion had to be silently dropped for lack of a
// spare slab -- AHI is best-effort and never surfaces this upward.
func (p *Partition) Insert(fold types.Fold, rec types.RecAddr) bool {
	idx := p.table.index(fold)
	for ref := p.table.cells[idx]; !ref.isNil(); {
		n := p.arena.deref(ref)
		if n.Fold == fold {
			n.Rec = rec
			return true
		}
		ref = n.Next
	}

	p.arenaMu.Lock()
	ref, ok := p.arena.allocate()
	p.arenaMu.Unlock()
	if !ok {
		return false
	}

	node := p.arena.deref(ref)
	node.Fold = fold
	node.Rec = rec
	node.Next = nilRef

	if p.table.cells[idx].isNil() {
		p.table.cells[idx] = ref
		return true
	}
	tailRef := p.table.cells[idx]
	tail := p.arena.deref(tailRef)
	for !tail.Next.isNil() {
		tailRef = tail.Next
		tail = p.arena.deref(tailRef)
	}
	tail.Next = ref
	return true
}

// InsertDistinct behaves like Insert but never overwrites an existing
// node of equal fold -- it always appends a new node, so two distinct
// prefix values that happen to fold equally can each keep their own
// node. Build, InsertAtCursor and UpdateHashRef do not call it; they
// use Insert.
func (p *Partition) InsertDistinct(fold types.Fold, rec types.RecAddr) bool {
	p.arenaMu.Lock()
	ref, ok := p.arena.allocate()
	p.arenaMu.Unlock()
	if !ok {
		return false
	}

	node := p.arena.deref(ref)
	node.Fold = fold
	node.Rec = rec
	node.Next = nilRef

	idx := p.table.index(fold)
	if p.table.cells[idx].isNil() {
		p.table.cells[idx] = ref
		return true
	}
	tailRef := p.table.cells[idx]
	tail := p.arena.deref(tailRef)
	for !tail.Next.isNil() {
		tailRef = tail.Next
		tail = p.arena.deref(tailRef)
	}
	tail.Next = ref
	return true
}

// Erase removes the node identified by (fold, rec) via identity match
// and compacts the arena. The write latch must be held.
func (p *Partition) Erase(fold types.Fold, rec types.RecAddr) {
	idx := p.table.index(fold)
	prevRef := nilRef
	ref := p.table.cells[idx]
	for !ref.isNil() {
		n := p.arena.deref(ref)
		if n.Rec == rec {
			p.unlink(idx, prevRef, ref, n)
			p.compact(ref)
			return
		}
		prevRef = ref
		ref = n.Next
	}
}

func (p *Partition) unlink(idx uint32, prevRef, ref nodeRef, n *Node) {
	if prevRef.isNil() {
		p.table.cells[idx] = n.Next
	} else {
		p.arena.deref(prevRef).Next = n.Next
	}
}

// compact fills the hole left by an unlinked node with the arena's top
// node, preserving O(1) erase with no free list and keeping every slab
// before the last one completely full.
func (p *Partition) compact(hole nodeRef) {
	p.arenaMu.Lock()
	defer p.arenaMu.Unlock()

	top, ok := p.arena.top()
	if !ok {
		return
	}
	if top != hole {
		topNode := p.arena.deref(top)
		cellIdx := p.table.index(topNode.Fold)
		p.redirect(cellIdx, top, hole)

		holeNode := p.arena.deref(hole)
		holeNode.Fold = topNode.Fold
		holeNode.Rec = topNode.Rec
		holeNode.Next = topNode.Next
	}
	p.arena.shrinkLast()
}

// redirect rewrites whichever chain pointer used to reference `from`
// so that it references `to` instead.
func (p *Partition) redirect(cellIdx uint32, from, to nodeRef) {
	if p.table.cells[cellIdx] == from {
		p.table.cells[cellIdx] = to
		return
	}
	ref := p.table.cells[cellIdx]
	for {
		n := p.arena.deref(ref)
		if n.Next == from {
			n.Next = to
			return
		}
		ref = n.Next
	}
}

// Lookup returns the record addressed by the first node matching fold.
// No identity check is performed: the caller validates the returned
// record against the live page. The read latch must be held.
func (p *Partition) Lookup(fold types.Fold) (types.RecAddr, bool) {
	idx := p.table.index(fold)
	ref := p.table.cells[idx]
	for !ref.isNil() {
		n := p.arena.deref(ref)
		if n.Fold == fold {
			return n.Rec, true
		}
		ref = n.Next
	}
	return 0, false
}

// UpdateIfFound rewrites rec for the node identified by identity
// (fold, oldRec) to newRec, used on in-place record moves. The write
// latch must be held.
func (p *Partition) UpdateIfFound(fold types.Fold, oldRec, newRec types.RecAddr) bool {
	idx := p.table.index(fold)
	ref := p.table.cells[idx]
	for !ref.isNil() {
		n := p.arena.deref(ref)
		if n.Rec == oldRec {
			n.Rec = newRec
			return true
		}
		ref = n.Next
	}
	return false
}

// RemoveAllForPage unlinks and compacts every node whose record lies
// inside [base, base+pageSize). Because compaction may move other
// nodes within the same cell, each cell's scan restarts from the head
// after every removal. The write latch must be held. Returns the
// number of nodes removed.
func (p *Partition) RemoveAllForPage(base types.RecAddr, pageSize int) int {
	removed := 0
	end := base + types.RecAddr(pageSize)
	for idx := uint32(0); idx < p.table.NCells(); idx++ {
		for {
			prevRef := nilRef
			ref := p.table.cells[idx]
			found := false
			for !ref.isNil() {
				n := p.arena.deref(ref)
				if n.Rec >= base && n.Rec < end {
					p.unlink(idx, prevRef, ref, n)
					p.compact(ref)
					removed++
					found = true
					break
				}
				prevRef = ref
				ref = n.Next
			}
			if !found {
				break
			}
		}
	}
	return removed
}

// Reset drops the entire table and arena, returning every slab
// (including the spare) to the buffer pool. Used by disable.
func (p *Partition) Reset() {
	for i := range p.table.cells {
		p.table.cells[i] = nilRef
	}
	p.arenaMu.Lock()
	p.arena.release()
	p.arenaMu.Unlock()
}
