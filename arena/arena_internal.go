package arena

import (
	"context"

	"github.com/outofforest/ahi/contracts"
)

// arena manages the ordered list of bump-allocation slabs plus the
// spare slab that lets a write-latched insert path always get a node
// without itself blocking on the buffer pool.
type arena struct {
	pool  contracts.BufferPool
	slabs []*Slab
	spare *Slab
}

func newArena(pool contracts.BufferPool) *arena {
	return &arena{pool: pool}
}

// prepareSpare refills the spare slab if missing. It must be called
// outside the partition write latch: allocating from the buffer pool
// may suspend (page eviction, I/O).
func (a *arena) prepareSpare(ctx context.Context) error {
	if a.spare != nil {
		return nil
	}
	frame, err := a.pool.AllocSlab(ctx)
	if err != nil {
		return err
	}
	a.spare = newSlab(frame)
	return nil
}

// allocate bump-allocates a node from the last slab, promoting the
// spare slab to the new last slab if the last slab is full. ok is
// false if there is no room and no spare -- the caller must silently
// drop the insertion (AHI is best-effort).
func (a *arena) allocate() (nodeRef, bool) {
	if len(a.slabs) == 0 || !a.slabs[len(a.slabs)-1].hasRoom() {
		if a.spare == nil {
			return nilRef, false
		}
		a.slabs = append(a.slabs, a.spare)
		a.spare = nil
	}
	last := len(a.slabs) - 1
	slab := a.slabs[last]
	idx := slab.freeOffset
	slab.freeOffset++
	return nodeRef{slab: int32(last), idx: int32(idx)}, true
}

func (a *arena) deref(ref nodeRef) *Node {
	if debugChecks {
		debugAssertf(int(ref.slab) >= 0 && int(ref.slab) < len(a.slabs),
			"nodeRef %+v: slab index out of range (have %d slabs)", ref, len(a.slabs))
		debugAssertf(int(ref.idx) < a.slabs[ref.slab].freeOffset,
			"nodeRef %+v: offset is not below free_offset %d", ref, a.slabs[ref.slab].freeOffset)
	}
	return &a.slabs[ref.slab].nodes[ref.idx]
}

// top returns the highest-offset live node in the last slab. It is
// valid only when the arena is non-empty.
func (a *arena) top() (nodeRef, bool) {
	if len(a.slabs) == 0 {
		return nilRef, false
	}
	last := len(a.slabs) - 1
	slab := a.slabs[last]
	if slab.freeOffset == 0 {
		return nilRef, false
	}
	return nodeRef{slab: int32(last), idx: int32(slab.freeOffset - 1)}, true
}

// shrinkLast drops the last slab's bump cursor by one, detaching the
// slab once it drains to zero: it becomes the spare if there isn't one
// already, otherwise it is returned to the buffer pool outright.
func (a *arena) shrinkLast() {
	last := len(a.slabs) - 1
	slab := a.slabs[last]
	slab.freeOffset--
	if slab.freeOffset > 0 {
		return
	}
	a.slabs = a.slabs[:last]
	if a.spare == nil {
		slab.reset()
		a.spare = slab
		return
	}
	a.pool.FreeSlab(slab.frame)
}

func (a *arena) slabCount() int { return len(a.slabs) }

// release returns every slab, including the spare, to the buffer pool.
// Used by Partition.Reset on disable.
func (a *arena) release() {
	for _, s := range a.slabs {
		a.pool.FreeSlab(s.frame)
	}
	a.slabs = nil
	if a.spare != nil {
		a.pool.FreeSlab(a.spare.frame)
		a.spare = nil
	}
}
