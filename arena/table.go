package arena

import "github.com/outofforest/ahi/types"

// Table is the array of hash-chain heads ("Hash
// Table"). Cell i holds the head of the chain of nodes whose
// fold mod n_cells == i.
type Table struct {
	cells []nodeRef
}

func newTable(nCells uint32) *Table {
	if nCells == 0 {
		nCells = 1
	}
	cells := make([]nodeRef, nCells)
	for i := range cells {
		cells[i] = nilRef
	}
	return &Table{cells: cells}
}

// NCells returns the bucket count.
func (t *Table) NCells() uint32 { return uint32(len(t.cells)) }

func (t *Table) index(f types.Fold) uint32 { return uint32(f) % uint32(len(t.cells)) }
