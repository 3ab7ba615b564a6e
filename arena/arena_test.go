package arena

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/types"
)

const testPageSize = 256 // small slabs so tests exercise multiple slabs quickly

// fakePool is a trivial in-memory buffer pool stand-in: AllocSlab hands
// out fresh byte slices, FreeSlab only counts the call. Only the slab-allocation
// surface of contracts.BufferPool is exercised by the arena package.
type fakePool struct {
	mu      sync.Mutex
	nextTag types.RecAddr
	allocs  int
	frees   int
}

func newFakePool() *fakePool { return &fakePool{} }

func (p *fakePool) AllocSlab(ctx context.Context) (contracts.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocs++
	addr := p.nextTag
	p.nextTag += testPageSize
	return contracts.Frame{Addr: addr, Bytes: make([]byte, testPageSize)}, nil
}

func (p *fakePool) FreeSlab(f contracts.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frees++
}

func (p *fakePool) BlockFromAddr(addr types.RecAddr) (contracts.Block, bool) { return nil, false }

func (p *fakePool) PageHashCell(pageID uint64) *sync.RWMutex { return &sync.RWMutex{} }

func (p *fakePool) Blocks() func(func(contracts.Block) bool) {
	return func(func(contracts.Block) bool) {}
}

func newTestPartition(t *testing.T, pool *fakePool, nCells uint32) *Partition {
	t.Helper()
	p := NewPartition(pool, nCells)
	require.NoError(t, p.PrepareInsert(context.Background()))
	return p
}

func TestInsertLookupRoundTrip(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 16)

	require.True(t, p.Insert(types.Fold(42), types.RecAddr(1000)))
	rec, ok := p.Lookup(types.Fold(42))
	require.True(t, ok)
	require.Equal(t, types.RecAddr(1000), rec)

	require.NoError(t, p.CheckInvariants())
}

func TestInsertOverwritesEqualFold(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 16)

	require.True(t, p.Insert(types.Fold(7), types.RecAddr(100)))
	require.True(t, p.Insert(types.Fold(7), types.RecAddr(200)))

	rec, ok := p.Lookup(types.Fold(7))
	require.True(t, ok)
	require.Equal(t, types.RecAddr(200), rec)
	require.Equal(t, 1, p.SlabCount())
}

func TestInsertEraseIsIdentity(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 16)

	require.True(t, p.Insert(types.Fold(1), types.RecAddr(10)))
	require.NoError(t, p.PrepareInsert(context.Background()))
	require.True(t, p.Insert(types.Fold(2), types.RecAddr(20)))

	p.Erase(types.Fold(1), types.RecAddr(10))
	_, ok := p.Lookup(types.Fold(1))
	require.False(t, ok)

	rec, ok := p.Lookup(types.Fold(2))
	require.True(t, ok)
	require.Equal(t, types.RecAddr(20), rec)

	require.NoError(t, p.CheckInvariants())
}

func TestEraseTopSwapCompaction(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 1) // force every node into the same cell's chain

	nodesPerSlab := testPageSize / 16 // sizeof(Node) is small; exact count doesn't matter
	_ = nodesPerSlab

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, p.PrepareInsert(context.Background()))
		require.True(t, p.InsertDistinct(types.Fold(i), types.RecAddr(i*8)))
	}
	require.NoError(t, p.CheckInvariants())

	// Erase a node that is not the arena's top and confirm the hole is
	// filled by the (former) top node, not left dangling.
	p.Erase(types.Fold(3), types.RecAddr(3*8))
	_, ok := p.Lookup(types.Fold(3))
	require.False(t, ok)
	require.NoError(t, p.CheckInvariants())

	for i := 0; i < n; i++ {
		if i == 3 {
			continue
		}
		rec, ok := p.Lookup(types.Fold(i))
		require.True(t, ok, "fold %d should still be findable after compaction", i)
		require.Equal(t, types.RecAddr(i*8), rec)
	}
}

func TestEraseAllShrinksToSpareOnly(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 4)

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, p.PrepareInsert(context.Background()))
		require.True(t, p.InsertDistinct(types.Fold(i), types.RecAddr(i*8)))
	}
	require.Greater(t, p.SlabCount(), 1, "test expects the insert volume to span multiple slabs")

	for i := 0; i < n; i++ {
		p.Erase(types.Fold(i), types.RecAddr(i*8))
	}

	require.Equal(t, 0, p.SlabCount())
	require.NoError(t, p.CheckInvariants())

	// Re-inserting after full drain should reuse the spare slab rather
	// than requiring a fresh pool allocation.
	allocsBefore := pool.allocs
	require.NoError(t, p.PrepareInsert(context.Background()))
	require.Equal(t, allocsBefore, pool.allocs)
	require.True(t, p.Insert(types.Fold(0), types.RecAddr(0)))
}

func TestRemoveAllForPage(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 8)

	const base = types.RecAddr(1000)
	const pageSize = 100
	for i := 0; i < 10; i++ {
		require.NoError(t, p.PrepareInsert(context.Background()))
		require.True(t, p.InsertDistinct(types.Fold(i), base+types.RecAddr(i)))
	}
	// one node belonging to a different page, must survive
	require.NoError(t, p.PrepareInsert(context.Background()))
	require.True(t, p.InsertDistinct(types.Fold(999), types.RecAddr(5000)))

	removed := p.RemoveAllForPage(base, pageSize)
	require.Equal(t, 10, removed)

	for i := 0; i < 10; i++ {
		_, ok := p.Lookup(types.Fold(i))
		require.False(t, ok)
	}
	rec, ok := p.Lookup(types.Fold(999))
	require.True(t, ok)
	require.Equal(t, types.RecAddr(5000), rec)
	require.NoError(t, p.CheckInvariants())
}

func TestUpdateIfFound(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 8)

	require.True(t, p.Insert(types.Fold(5), types.RecAddr(50)))
	require.True(t, p.UpdateIfFound(types.Fold(5), types.RecAddr(50), types.RecAddr(500)))

	rec, ok := p.Lookup(types.Fold(5))
	require.True(t, ok)
	require.Equal(t, types.RecAddr(500), rec)

	require.False(t, p.UpdateIfFound(types.Fold(5), types.RecAddr(999), types.RecAddr(1)))
}

func TestInsertWithoutSpareDropsSilently(t *testing.T) {
	pool := newFakePool()
	p := NewPartition(pool, 4) // no PrepareInsert call: no spare, no slabs

	ok := p.Insert(types.Fold(1), types.RecAddr(1))
	require.False(t, ok)
	require.NoError(t, p.CheckInvariants())
}

func TestResetReturnsSlabsToPool(t *testing.T) {
	pool := newFakePool()
	p := newTestPartition(t, pool, 4)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.PrepareInsert(context.Background()))
		require.True(t, p.InsertDistinct(types.Fold(i), types.RecAddr(i)))
	}
	freesBefore := pool.frees
	p.Reset()
	require.Equal(t, 0, p.SlabCount())
	require.Greater(t, pool.frees, freesBefore)

	for i := 0; i < 5; i++ {
		_, ok := p.Lookup(types.Fold(i))
		require.False(t, ok)
	}
}
