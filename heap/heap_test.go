package heap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmemkit/pmemkit/pool"
)

func newTestHeap(t *testing.T, opts pool.Options) (*Heap, *pool.Pool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pool")
	p, err := pool.Create(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	h, err := Open(p, nil, nil)
	require.NoError(t, err)
	return h, p
}

func fillConstruct(b byte) func([]byte) error {
	return func(payload []byte) error {
		for i := range payload {
			payload[i] = b
		}
		return nil
	}
}

func TestAllocateFreeRoundtrip(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	off, err := h.Allocate(64, fillConstruct(0xAB))
	require.NoError(t, err)
	require.Greater(t, off, int64(0))

	payload, err := h.Payload(off)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(payload), 64)
	for _, b := range payload[:64] {
		require.Equal(t, byte(0xAB), b)
	}

	res := Check(p)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 1, res.AllocatedCells)

	require.NoError(t, h.Free(off))

	res = Check(p)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 0, res.AllocatedCells)
}

func TestAllocateRejectsNonPositiveSize(t *testing.T) {
	h, _ := newTestHeap(t, pool.DefaultOptions)

	_, err := h.Allocate(0, nil)
	assert.ErrorIs(t, err, ErrTooSmall)
	_, err = h.Allocate(-8, nil)
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestAllocateZeroesPayload(t *testing.T) {
	h, _ := newTestHeap(t, pool.DefaultOptions)

	// Dirty a cell, free it, then reallocate the same size. The new
	// payload must not leak the old contents.
	off, err := h.Allocate(48, fillConstruct(0xFF))
	require.NoError(t, err)
	require.NoError(t, h.Free(off))

	var seen []byte
	_, err = h.Allocate(48, func(payload []byte) error {
		seen = append([]byte(nil), payload...)
		return nil
	})
	require.NoError(t, err)
	for _, b := range seen {
		require.Equal(t, byte(0), b)
	}
}

func TestConstructFailureLeavesHeapUnchanged(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	_, err := h.Allocate(32, fillConstruct(0x01))
	require.NoError(t, err)
	baseline := Check(p)
	require.True(t, baseline.OK())

	boom := assert.AnError
	_, err = h.Allocate(128, func([]byte) error { return boom })
	require.ErrorIs(t, err, boom)

	after := Check(p)
	require.True(t, after.OK(), "problems: %v", after.Problems)
	assert.Equal(t, baseline.AllocatedCells, after.AllocatedCells)
	assert.Equal(t, baseline.AllocatedBytes, after.AllocatedBytes)
	assert.Equal(t, baseline.FreeBytes, after.FreeBytes)

	// The reservation must have been released, not leaked: the same
	// request still succeeds.
	_, err = h.Allocate(128, nil)
	require.NoError(t, err)
}

func TestFreeRejectsBadOffsets(t *testing.T) {
	h, _ := newTestHeap(t, pool.DefaultOptions)

	assert.ErrorIs(t, h.Free(0), ErrBadOffset)
	assert.ErrorIs(t, h.Free(1<<40), ErrBadOffset)

	off, err := h.Allocate(32, nil)
	require.NoError(t, err)
	require.NoError(t, h.Free(off))
	assert.ErrorIs(t, h.Free(off), ErrNotAllocated)
}

func TestCoalescing(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	a, err := h.Allocate(64, nil)
	require.NoError(t, err)
	b, err := h.Allocate(64, nil)
	require.NoError(t, err)
	c, err := h.Allocate(64, nil)
	require.NoError(t, err)

	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(b)) // backward merge with a
	require.NoError(t, h.Free(c)) // merges with ab and the extent tail

	res := Check(p)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 0, res.AllocatedCells)
	assert.Equal(t, 1, res.FreeCells, "freed neighbors should coalesce into one cell")

	st := h.Stats()
	assert.Positive(t, st.CoalesceBackward)
	assert.Positive(t, st.CoalesceForward)
}

func TestBestFitReusesFreedCell(t *testing.T) {
	h, _ := newTestHeap(t, pool.DefaultOptions)

	a, err := h.Allocate(64, nil)
	require.NoError(t, err)
	// Pin a neighbor so freeing a does not coalesce into the tail.
	_, err = h.Allocate(64, nil)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))

	got, err := h.Allocate(64, nil)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestOutOfMemory(t *testing.T) {
	h, _ := newTestHeap(t, pool.Options{
		MaxSize: 8192, // header plus a single minimum extent
		Mode:    0o644,
	})

	// Fits in the one extent the cap allows.
	_, err := h.Allocate(512, nil)
	require.NoError(t, err)

	// Cannot fit and cannot grow.
	_, err = h.Allocate(64*1024, nil)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestGrowAddsExtents(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	_, err := h.Allocate(512, nil)
	require.NoError(t, err)
	_, err = h.Allocate(256*1024, nil)
	require.NoError(t, err)

	res := Check(p)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.GreaterOrEqual(t, res.Extents, 2)
	assert.Positive(t, h.Stats().GrowCalls)
}

func TestRestoreReinstatesExactBytes(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	off, err := h.Allocate(96, fillConstruct(0x5C))
	require.NoError(t, err)
	payload, err := h.Payload(off)
	require.NoError(t, err)
	snapshot := append([]byte(nil), payload...)

	before := Check(p)
	require.True(t, before.OK())

	require.NoError(t, h.Free(off))
	require.NoError(t, h.Restore(off, snapshot))

	after := Check(p)
	require.True(t, after.OK(), "problems: %v", after.Problems)
	assert.Equal(t, before.AllocatedCells, after.AllocatedCells)
	assert.Equal(t, before.AllocatedBytes, after.AllocatedBytes)

	restored, err := h.Payload(off)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(snapshot, restored))
}

func TestRestoreMiddleOfFreeCell(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	a, err := h.Allocate(64, fillConstruct(0x11))
	require.NoError(t, err)
	b, err := h.Allocate(64, fillConstruct(0x22))
	require.NoError(t, err)
	c, err := h.Allocate(64, fillConstruct(0x33))
	require.NoError(t, err)

	snap, err := h.Payload(b)
	require.NoError(t, err)
	snapshot := append([]byte(nil), snap...)

	// Free all three so b's region sits in the middle of one large free
	// cell, then restore just b.
	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(b))
	require.NoError(t, h.Free(c))

	require.NoError(t, h.Restore(b, snapshot))

	res := Check(p)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 1, res.AllocatedCells)

	restored, err := h.Payload(b)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(snapshot, restored))

	// Both carved-off neighbors must be allocatable again.
	got, err := h.Allocate(64, nil)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestRestoreRejectsAllocatedTarget(t *testing.T) {
	h, _ := newTestHeap(t, pool.DefaultOptions)

	off, err := h.Allocate(32, nil)
	require.NoError(t, err)
	err = h.Restore(off, make([]byte, 32))
	assert.ErrorIs(t, err, ErrNotAllocated)
}

func TestReopenRebuildsFreeIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pool")
	p, err := pool.Create(path, pool.DefaultOptions)
	require.NoError(t, err)
	h, err := Open(p, nil, nil)
	require.NoError(t, err)

	a, err := h.Allocate(64, fillConstruct(0x7E))
	require.NoError(t, err)
	b, err := h.Allocate(64, fillConstruct(0x7F))
	require.NoError(t, err)
	require.NoError(t, h.Free(a))
	require.NoError(t, p.Close())

	p, err = pool.Open(path)
	require.NoError(t, err)
	defer p.Close()
	h, err = Open(p, nil, nil)
	require.NoError(t, err)

	// The surviving allocation is intact.
	payload, err := h.Payload(b)
	require.NoError(t, err)
	require.Equal(t, byte(0x7F), payload[0])

	// The freed cell was re-indexed and is preferred by best fit.
	got, err := h.Allocate(64, nil)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestCrashBeforeCommitLeavesCellFree(t *testing.T) {
	dir := t.TempDir()
	p, err := pool.Create(filepath.Join(dir, "live.pool"), pool.DefaultOptions)
	require.NoError(t, err)
	defer p.Close()
	h, err := Open(p, nil, nil)
	require.NoError(t, err)

	// Capture the pool image mid-allocation: the construct callback runs
	// after the extent and any split header are durable but before the
	// commit-point header flip, which is exactly where a crash is most
	// interesting.
	var image []byte
	off, err := h.Allocate(64, func(b []byte) error {
		image = append([]byte(nil), p.Bytes()...)
		for i := range b {
			b[i] = 0xEE
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, image)

	crashPath := filepath.Join(dir, "crashed.pool")
	require.NoError(t, os.WriteFile(crashPath, image, 0o644))

	cp, err := pool.Open(crashPath)
	require.NoError(t, err)
	defer cp.Close()

	// The interrupted allocation is invisible: the heap parses, and the
	// cell reads free.
	res := Check(cp)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 0, res.AllocatedCells)

	// The region is reusable after reopen.
	ch, err := Open(cp, nil, nil)
	require.NoError(t, err)
	got, err := ch.Allocate(64, nil)
	require.NoError(t, err)
	assert.Equal(t, off, got)
}

func TestCrashAfterCommitKeepsObject(t *testing.T) {
	dir := t.TempDir()
	p, err := pool.Create(filepath.Join(dir, "live.pool"), pool.DefaultOptions)
	require.NoError(t, err)
	defer p.Close()
	h, err := Open(p, nil, nil)
	require.NoError(t, err)

	off, err := h.Allocate(64, fillConstruct(0xDA))
	require.NoError(t, err)

	// The header flip was the commit point; a crash immediately after it
	// is modeled by the pool image as it stands now.
	image := append([]byte(nil), p.Bytes()...)
	crashPath := filepath.Join(dir, "crashed.pool")
	require.NoError(t, os.WriteFile(crashPath, image, 0o644))

	cp, err := pool.Open(crashPath)
	require.NoError(t, err)
	defer cp.Close()

	res := Check(cp)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 1, res.AllocatedCells)

	ch, err := Open(cp, nil, nil)
	require.NoError(t, err)
	payload, err := ch.Payload(off)
	require.NoError(t, err)
	for _, b := range payload[:64] {
		require.Equal(t, byte(0xDA), b)
	}
}

func TestCheckDetectsCorruptCell(t *testing.T) {
	h, p := newTestHeap(t, pool.DefaultOptions)

	off, err := h.Allocate(64, nil)
	require.NoError(t, err)

	// Stomp the cell header with an unaligned size.
	data := p.Bytes()
	data[off-8] = 0x03

	res := Check(p)
	assert.False(t, res.OK())
}

func TestSizeClassTable(t *testing.T) {
	table := newSizeClassTable(ConfigBalanced)

	require.Positive(t, table.NumClasses())

	// Classes are monotonic in size.
	last := -1
	for _, size := range []int64{16, 24, 32, 500, 513, 1024, 8192, 16383} {
		sc := table.getSizeClass(size)
		require.GreaterOrEqual(t, sc, last, "size %d", size)
		require.Less(t, sc, table.NumClasses(), "size %d", size)
		last = sc
	}

	// At or past MediumMax goes to the large list.
	assert.Equal(t, table.NumClasses(), table.getSizeClass(16384))
	assert.Equal(t, table.NumClasses(), table.getSizeClass(1<<20))
}
