package arena

import "github.com/outofforest/ahi/types"

// nodeRef addresses a single arena node by (slab, offset) rather than
// by raw pointer. It is the only way nodes reference each other: a raw
// Go pointer into a slab's
// photon-reinterpreted memory would not be traced correctly by the
// garbage collector, since the slab's backing array is allocated (and
// typed, for GC purposes) as a plain byte buffer.
type nodeRef struct {
	slab int32
	idx  int32
}

var nilRef = nodeRef{slab: -1, idx: -1}

func (r nodeRef) isNil() bool { return r.slab < 0 }

// Node is a single hash-chain entry: a fold, the record it addresses,
// and a reference to the next node in its cell's chain. Nodes are
// never individually heap-allocated; they live inside page-sized arena
// slabs, reached only through a nodeRef (see Slab, arena).
type Node struct {
	Fold types.Fold
	Next nodeRef
	Rec  types.RecAddr
}
