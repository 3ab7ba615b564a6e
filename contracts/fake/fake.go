// Package fake provides in-memory stand-ins for contracts.BufferPool,
// contracts.Block and contracts.Dictionary, following the same
// per-package test fixture pattern as alloc/test.go and space/test.go:
// a small, throwaway harness that lets the AHI core be exercised
// without a real B-tree or buffer pool.
package fake

import (
	"context"
	"sort"
	"sync"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/types"
)

// Field is one column value used to build fake records and tuples.
type Field struct {
	Null     bool
	Bytes    []byte
	FixedLen int
}

// Row is a contracts.RecordReader backed by a plain slice of fields;
// it is used both as a physical page record and as a logical search
// tuple, exactly the dual role contracts.RecordReader is meant to play.
type Row struct {
	Fields    []Field
	RowLayout types.Layout
}

// NewRow builds a Row from raw byte fields (all non-NULL, compact layout).
func NewRow(fields ...[]byte) Row {
	fs := make([]Field, len(fields))
	for i, b := range fields {
		fs[i] = Field{Bytes: b}
	}
	return Row{Fields: fs}
}

func (r Row) NumFields() int { return len(r.Fields) }

func (r Row) Field(i int) contracts.FieldView {
	f := r.Fields[i]
	return contracts.FieldView{Null: f.Null, Bytes: f.Bytes, FixedLen: f.FixedLen}
}

func (r Row) IsMinRecord() bool { return len(r.Fields) == 0 }

// Layout implements contracts.RecordReader.
func (r Row) Layout() types.Layout { return r.RowLayout }

// compareFields lexicographically compares two rows' leading fields,
// returning (cmp, match) the way an index key comparator would: match
// is the number of leading fields that compared equal.
func compareFields(a, b Row) (int, int) {
	n := len(a.Fields)
	if len(b.Fields) < n {
		n = len(b.Fields)
	}
	for i := 0; i < n; i++ {
		fa, fb := a.Fields[i], b.Fields[i]
		if fa.Null && fb.Null {
			continue
		}
		if fa.Null {
			return -1, i
		}
		if fb.Null {
			return 1, i
		}
		c := compareBytes(fa.Bytes, fb.Bytes)
		if c != 0 {
			return c, i
		}
	}
	if len(a.Fields) == len(b.Fields) {
		return 0, n
	}
	if len(a.Fields) < len(b.Fields) {
		return -1, n
	}
	return 1, n
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// record is one stored page record: a fixed logical-order slot plus
// the row content.
type record struct {
	addr types.RecAddr
	row  Row
}

// Block is an in-memory fake implementing contracts.Block. Records
// are kept sorted by key in a plain slice; there is no real page
// layout or byte frame, only enough behaviour for the AHI to exercise
// its own logic against.
type Block struct {
	mu       sync.RWMutex
	pageID   uint64
	base     types.RecAddr
	pageSize int
	hasPrev  bool
	hasNext  bool

	records []record
	nextAdr types.RecAddr

	info  types.BlockInfo
	state types.BlockState
}

// NewBlock creates an empty fake block. base/pageSize define the
// address range RemoveAllForPage keys off; addresses handed to new
// records are allocated sequentially starting at base+1 so 0 can mean
// "no record".
func NewBlock(pageID uint64, base types.RecAddr, pageSize int) *Block {
	return &Block{
		pageID:   pageID,
		base:     base,
		pageSize: pageSize,
		nextAdr:  base + 1,
		state:    types.BlockUnfixed,
	}
}

func (b *Block) RLock()          { b.mu.RLock() }
func (b *Block) RUnlock()        { b.mu.RUnlock() }
func (b *Block) Lock()           { b.mu.Lock() }
func (b *Block) Unlock()         { b.mu.Unlock() }
func (b *Block) TryRLock() bool  { return b.mu.TryRLock() }
func (b *Block) TryLock() bool   { return b.mu.TryLock() }
func (b *Block) State() types.BlockState { return b.state }
func (b *Block) SetState(s types.BlockState) { b.state = s }
func (b *Block) Resident() bool  { return b.state != types.BlockFreed }
func (b *Block) PageID() uint64  { return b.pageID }
func (b *Block) Base() types.RecAddr { return b.base }
func (b *Block) PageSize() int   { return b.pageSize }
func (b *Block) RecordCount() uint32 { return uint32(len(b.records)) }
func (b *Block) Info() *types.BlockInfo { return &b.info }
func (b *Block) HasPrev() bool   { return b.hasPrev }
func (b *Block) HasNext() bool   { return b.hasNext }
func (b *Block) SetHasPrev(v bool) { b.hasPrev = v }
func (b *Block) SetHasNext(v bool) { b.hasNext = v }

func (b *Block) Index() (types.IndexID, bool) { return b.info.Index() }
func (b *Block) SetIndex(id types.IndexID, ok bool) { b.info.SetIndex(id, ok) }

// InsertRow appends a row in key order, returning its assigned address.
func (b *Block) InsertRow(row Row) types.RecAddr {
	addr := b.nextAdr
	b.nextAdr++
	b.records = append(b.records, record{addr: addr, row: row})
	sort.Slice(b.records, func(i, j int) bool {
		c, _ := compareFields(b.records[i].row, b.records[j].row)
		return c < 0
	})
	return addr
}

func (b *Block) indexOf(addr types.RecAddr) int {
	for i, r := range b.records {
		if r.addr == addr {
			return i
		}
	}
	return -1
}

// Records iterates records in logical (key) order.
func (b *Block) Records() func(func(types.RecAddr, contracts.RecordReader) bool) {
	return func(yield func(types.RecAddr, contracts.RecordReader) bool) {
		for _, r := range b.records {
			if !yield(r.addr, r.row) {
				return
			}
		}
	}
}

func (b *Block) RecordAt(addr types.RecAddr) (contracts.RecordReader, bool) {
	i := b.indexOf(addr)
	if i < 0 {
		return nil, false
	}
	return b.records[i].row, true
}

func (b *Block) Previous(addr types.RecAddr) (types.RecAddr, contracts.RecordReader, bool) {
	i := b.indexOf(addr)
	if i <= 0 {
		return 0, nil, false
	}
	return b.records[i-1].addr, b.records[i-1].row, true
}

func (b *Block) Next(addr types.RecAddr) (types.RecAddr, contracts.RecordReader, bool) {
	i := b.indexOf(addr)
	if i < 0 || i >= len(b.records)-1 {
		return 0, nil, false
	}
	return b.records[i+1].addr, b.records[i+1].row, true
}

func (b *Block) Compare(tuple, rec contracts.RecordReader) (int, int) {
	return compareFields(tuple.(Row), rec.(Row))
}

// Pool is an in-memory fake implementing contracts.BufferPool.
type Pool struct {
	mu       sync.Mutex
	blocks   map[uint64]*Block
	byAddr   []*Block // sorted by base, for BlockFromAddr
	pageSize int
	cells    map[uint64]*sync.RWMutex

	allocs, frees int
}

// NewPool creates an empty fake buffer pool. pageSize sizes every
// slab handed out by AllocSlab.
func NewPool(pageSize int) *Pool {
	return &Pool{
		blocks:   map[uint64]*Block{},
		pageSize: pageSize,
		cells:    map[uint64]*sync.RWMutex{},
	}
}

// AddBlock registers a fake block so BlockFromAddr can resolve
// addresses inside it.
func (p *Pool) AddBlock(b *Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks[b.pageID] = b
	p.byAddr = append(p.byAddr, b)
	sort.Slice(p.byAddr, func(i, j int) bool { return p.byAddr[i].base < p.byAddr[j].base })
}

func (p *Pool) AllocSlab(ctx context.Context) (contracts.Frame, error) {
	p.mu.Lock()
	p.allocs++
	p.mu.Unlock()
	return contracts.Frame{Bytes: make([]byte, p.pageSize)}, nil
}

func (p *Pool) FreeSlab(contracts.Frame) {
	p.mu.Lock()
	p.frees++
	p.mu.Unlock()
}

func (p *Pool) BlockFromAddr(addr types.RecAddr) (contracts.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.byAddr) - 1; i >= 0; i-- {
		b := p.byAddr[i]
		if addr >= b.base && addr < b.base+types.RecAddr(b.pageSize) {
			return b, true
		}
	}
	return nil, false
}

func (p *Pool) PageHashCell(pageID uint64) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cells[pageID]
	if !ok {
		c = &sync.RWMutex{}
		p.cells[pageID] = c
	}
	return c
}

func (p *Pool) Blocks() func(func(contracts.Block) bool) {
	return func(yield func(contracts.Block) bool) {
		p.mu.Lock()
		snapshot := make([]*Block, len(p.byAddr))
		copy(snapshot, p.byAddr)
		p.mu.Unlock()
		for _, b := range snapshot {
			if !yield(b) {
				return
			}
		}
	}
}

// Dictionary is an in-memory fake implementing contracts.Dictionary.
type Dictionary struct {
	mu      sync.Mutex
	frozen  bool
	indexes []*contracts.Index
}

func NewDictionary() *Dictionary { return &Dictionary{} }

func (d *Dictionary) Freeze()   { d.mu.Lock(); d.frozen = true; d.mu.Unlock() }
func (d *Dictionary) Unfreeze() { d.mu.Lock(); d.frozen = false; d.mu.Unlock() }

func (d *Dictionary) AddIndex(ix *contracts.Index) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.indexes = append(d.indexes, ix)
}

func (d *Dictionary) Indexes() []*contracts.Index {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*contracts.Index, len(d.indexes))
	copy(out, d.indexes)
	return out
}
