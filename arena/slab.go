package arena

import (
	"unsafe"

	"github.com/outofforest/photon"

	"github.com/outofforest/ahi/contracts"
)

// Slab is one page-sized bump-allocation region for Node values,
// backed by a frame obtained from the buffer pool. Its freeOffset
// cursor grows under allocation and shrinks under erase.
type Slab struct {
	frame      contracts.Frame
	nodes      []Node
	freeOffset int
}

// newSlab reinterprets a buffer-pool frame's raw bytes as a typed,
// zero-copy array of Node slots with photon.SliceFromPointer, the
// same trick the teacher repository's alloc.State.Bytes and
// space.Space node allocator use to view a page frame as a typed node
// array.
func newSlab(frame contracts.Frame) *Slab {
	capacity := len(frame.Bytes) / int(unsafe.Sizeof(Node{}))
	var nodes []Node
	if capacity > 0 {
		nodes = photon.SliceFromPointer[Node](unsafe.Pointer(&frame.Bytes[0]), capacity)
	}
	return &Slab{frame: frame, nodes: nodes}
}

func (s *Slab) hasRoom() bool { return s.freeOffset < len(s.nodes) }

func (s *Slab) reset() { s.freeOffset = 0 }

// Capacity returns how many nodes the slab can hold in total.
func (s *Slab) Capacity() int { return len(s.nodes) }

// Len returns how many nodes are currently live in the slab.
func (s *Slab) Len() int { return s.freeOffset }
