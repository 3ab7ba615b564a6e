package arena

import "github.com/pkg/errors"

// CheckInvariants walks the whole partition and verifies the
// structural invariants a correct implementation must never violate:
//
//   - I2: every node reference resolves to an in-bounds (slab, offset)
//     pair below that slab's free_offset.
//   - I3: the arena is dense -- every slab before the last is full, and
//     only the last slab's free_offset may be partial. There is no
//     free list; erase always compacts immediately.
//   - I4: every node is reachable from exactly one hash-table cell
//     chain (the one its own fold maps to), and the chain contains no
//     cycles.
//
// It is intended for tests and for a debug-build consistency checker,
// not for the hot path.
func (p *Partition) CheckInvariants() error {
	p.arenaMu.Lock()
	defer p.arenaMu.Unlock()

	for i, slab := range p.arena.slabs {
		if i < len(p.arena.slabs)-1 && slab.freeOffset != slab.Capacity() {
			return errors.Errorf("arena invariant I3 violated: slab %d is not full (%d/%d) but is not last",
				i, slab.freeOffset, slab.Capacity())
		}
	}

	reached := make(map[nodeRef]bool)
	for idx := uint32(0); idx < p.table.NCells(); idx++ {
		ref := p.table.cells[idx]
		seen := map[nodeRef]bool{}
		for !ref.isNil() {
			if int(ref.slab) < 0 || int(ref.slab) >= len(p.arena.slabs) {
				return errors.Errorf("arena invariant I2 violated: cell %d references out-of-range slab %d", idx, ref.slab)
			}
			if int(ref.idx) >= p.arena.slabs[ref.slab].freeOffset {
				return errors.Errorf("arena invariant I2 violated: cell %d references offset %d >= free_offset %d in slab %d",
					idx, ref.idx, p.arena.slabs[ref.slab].freeOffset, ref.slab)
			}
			if seen[ref] {
				return errors.Errorf("arena invariant I4 violated: cycle detected in chain for cell %d", idx)
			}
			seen[ref] = true

			n := p.arena.deref(ref)
			if p.table.index(n.Fold) != idx {
				return errors.Errorf("arena invariant I4 violated: node %+v with fold %d found in cell %d, belongs in cell %d",
					ref, n.Fold, idx, p.table.index(n.Fold))
			}
			if reached[ref] {
				return errors.Errorf("arena invariant I4 violated: node %+v reachable from more than one cell", ref)
			}
			reached[ref] = true
			ref = n.Next
		}
	}

	var total int
	for _, s := range p.arena.slabs {
		total += s.Len()
	}
	if len(reached) != total {
		return errors.Errorf("arena invariant I4 violated: %d live nodes but only %d reachable from the hash table",
			total, len(reached))
	}
	return nil
}
