package heap

import (
	stdheap "container/heap"
	"fmt"
	"sync"

	"github.com/pmemkit/pmemkit/dirty"
	"github.com/pmemkit/pmemkit/internal/format"
	"github.com/pmemkit/pmemkit/pool"
)

// Heap is the allocator bound to one open pool.
//
// All public operations serialize on an internal mutex; this is the heap's
// critical section that allows independent goroutines to allocate and free
// against the same pool concurrently.
type Heap struct {
	p  *pool.Pool
	dt dirty.DirtyTracker // optional, may be nil

	mu sync.Mutex

	sizeTable *sizeClassTable
	freeLists []freeList
	largeFree *largeBlock

	// O(1) lookup indexes over free cells:
	// byOff: cell offset -> heap entry (for removal during coalescing)
	// startIdx: cell offset -> size (forward coalesce lookup)
	// endIdx: cell end offset -> cell offset (backward coalesce lookup)
	byOff    map[int64]*freeCell
	startIdx map[int64]int64
	endIdx   map[int64]int64

	// Extent boundaries for binary search.
	exts []extentRange

	stats Stats
}

// extentRange is one extent's [start, end) file-offset span.
type extentRange struct {
	start int64
	end   int64
}

// Stats holds allocator counters, readable via Heap.Stats.
type Stats struct {
	AllocCalls       int
	FreeCalls        int
	GrowCalls        int
	SplitCount       int
	CoalesceForward  int
	CoalesceBackward int
	Restores         int

	BytesAllocated int64
	BytesFreed     int64
	GrowBytes      int64
}

// Open builds the allocator for p, rebuilding the free-space index from the
// durable cell headers. dt may be nil when dirty tracking is not wanted;
// config nil selects DefaultConfig.
func Open(p *pool.Pool, dt dirty.DirtyTracker, config *SizeClassConfig) (*Heap, error) {
	if config == nil {
		config = &DefaultConfig
	}
	sizeTable := newSizeClassTable(*config)

	h := &Heap{
		p:         p,
		dt:        dt,
		sizeTable: sizeTable,
		freeLists: make([]freeList, sizeTable.NumClasses()),
		byOff:     make(map[int64]*freeCell, 256),
		startIdx:  make(map[int64]int64, 256),
		endIdx:    make(map[int64]int64, 256),
		exts:      make([]extentRange, 0, 16),
	}
	if err := h.initFreeLists(); err != nil {
		return nil, err
	}
	return h, nil
}

// Pool returns the pool this heap allocates from.
func (h *Heap) Pool() *pool.Pool { return h.p }

// Stats returns a snapshot of the allocator counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Allocate reserves size payload bytes, runs construct on the zeroed
// payload, and durably commits the allocation. It returns the payload's
// absolute file offset.
//
// The commit point is the final header flush: a crash before it leaves the
// region observably unallocated, a crash after leaves it allocated and fully
// constructed. If construct returns an error the reservation is released,
// the durable state is unchanged, and the error is returned as-is.
func (h *Heap) Allocate(size int64, construct func([]byte) error) (int64, error) {
	if size <= 0 {
		return 0, ErrTooSmall
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.AllocCalls++
	need := format.Align8(size + format.CellHeaderSize)
	if need < format.MinCellSize {
		need = format.MinCellSize
	}

	cell := h.takeCell(need)
	if cell == nil {
		if err := h.grow(need); err != nil {
			return 0, err
		}
		cell = h.takeCell(need)
		if cell == nil {
			return 0, ErrOutOfMemory
		}
	}

	data := h.p.Bytes()
	off := cell.off
	cellSize := cell.size
	if off < 0 || off+cellSize > int64(len(data)) {
		return 0, fmt.Errorf("free cell [%d,%d) out of bounds: %w", off, off+cellSize, ErrCorrupt)
	}

	// Carve the split remainder as its own free cell before the head is
	// committed. Until the head header flips, the durable state is still
	// one big free cell and the tail header is invisible interior bytes.
	rem := cellSize - need
	tailOff := int64(-1)
	if rem >= format.MinCellSize {
		h.stats.SplitCount++
		tailOff = off + need
		format.PutI64(data, int(tailOff), rem)
		h.persist(tailOff, format.CellHeaderSize)
	} else {
		// Absorb a remainder too small to stand alone.
		need = cellSize
	}

	payload := data[off+format.CellHeaderSize : off+need]
	for i := range payload {
		payload[i] = 0
	}
	if construct != nil {
		if err := construct(payload); err != nil {
			// Reservation released; durably the original free cell
			// never changed.
			h.insertFreeCell(off, cellSize)
			return 0, err
		}
	}
	h.persist(off+format.CellHeaderSize, need-format.CellHeaderSize)

	// Commit point.
	format.PutI64(data, int(off), -need)
	h.persist(off, format.CellHeaderSize)

	if tailOff >= 0 {
		h.insertFreeCell(tailOff, rem)
	}
	if h.dt != nil {
		h.dt.Add(int(off), int(need))
	}
	h.stats.BytesAllocated += need

	return off + format.CellHeaderSize, nil
}

// Free releases the allocation whose payload starts at payloadOff. The
// header flip is the durable commit point; coalescing afterwards only ever
// rewrites the surviving cell's header, so a crash at any step resolves to
// either still-allocated or cleanly free.
//
// Free never invokes destructors; object cleanup is the caller's concern.
func (h *Heap) Free(payloadOff int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.freeLocked(payloadOff)
}

func (h *Heap) freeLocked(payloadOff int64) error {
	data := h.p.Bytes()
	off := payloadOff - format.CellHeaderSize
	if off < format.HeaderSize+format.ExtentHeaderSize ||
		payloadOff > int64(len(data)) {
		return ErrBadOffset
	}

	raw := format.ReadI64(data, int(off))
	if raw >= 0 {
		return ErrNotAllocated
	}
	sz := -raw
	if off+sz > int64(len(data)) {
		return fmt.Errorf("allocated cell at %d overruns pool: %w", off, ErrCorrupt)
	}

	h.stats.FreeCalls++
	h.stats.BytesFreed += sz

	// Commit point: the cell is free.
	format.PutI64(data, int(off), sz)
	h.persist(off, format.CellHeaderSize)

	_, extEnd, found := h.findExtent(off)
	if !found {
		h.insertFreeCell(off, sz)
		return nil
	}

	// Forward coalesce, only within the same extent. The absorbed cell's
	// header becomes interior bytes of the merged cell, which scans skip.
	next := off + sz
	if next < extEnd {
		if nsz, free := h.startIdx[next]; free {
			h.stats.CoalesceForward++
			h.removeFreeCell(next, nsz)
			sz += nsz
			format.PutI64(data, int(off), sz)
			h.persist(off, format.CellHeaderSize)
		}
	}

	// Backward coalesce via the end-offset index.
	if prevOff, ok := h.endIdx[off]; ok {
		if psz, free := h.startIdx[prevOff]; free {
			h.stats.CoalesceBackward++
			h.removeFreeCell(prevOff, psz)
			sz += psz
			off = prevOff
			format.PutI64(data, int(off), sz)
			h.persist(off, format.CellHeaderSize)
		}
	}

	h.insertFreeCell(off, sz)
	return nil
}

// Payload returns the live payload bytes of the allocation at payloadOff,
// including any alignment padding past the requested size.
func (h *Heap) Payload(payloadOff int64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data := h.p.Bytes()
	off := payloadOff - format.CellHeaderSize
	if off < format.HeaderSize+format.ExtentHeaderSize ||
		payloadOff > int64(len(data)) {
		return nil, ErrBadOffset
	}
	raw := format.ReadI64(data, int(off))
	if raw >= 0 {
		return nil, ErrNotAllocated
	}
	sz := -raw
	if off+sz > int64(len(data)) {
		return nil, fmt.Errorf("allocated cell at %d overruns pool: %w", off, ErrCorrupt)
	}
	return data[payloadOff : off+sz], nil
}

// Restore re-allocates the exact region at payloadOff and fills it with
// snapshot. It is the inverse of Free, used by transaction rollback to undo
// a logged deallocation: the region must currently be inside one free cell,
// which reverse-order rollback guarantees.
//
// The carve is sequenced free-headers-first so every intermediate durable
// state is a scannable run of free cells; the final negative header flip is
// the commit point.
func (h *Heap) Restore(payloadOff int64, snapshot []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data := h.p.Bytes()
	need := format.Align8(int64(len(snapshot)) + format.CellHeaderSize)
	if need < format.MinCellSize {
		need = format.MinCellSize
	}
	off := payloadOff - format.CellHeaderSize
	if off < format.HeaderSize+format.ExtentHeaderSize ||
		off+need > int64(len(data)) {
		return ErrBadOffset
	}

	containOff, containSize, err := h.findContainingFree(off, need)
	if err != nil {
		return err
	}
	h.removeFreeCell(containOff, containSize)

	front := off - containOff
	back := containOff + containSize - (off + need)
	if back > 0 && back < format.MinCellSize {
		// Absorb a sliver too small to stand alone as a free cell.
		need += back
		back = 0
	}
	if front > 0 && front < format.MinCellSize {
		h.insertFreeCell(containOff, containSize)
		return fmt.Errorf("restore at %d leaves %d-byte front sliver: %w",
			payloadOff, front, ErrCorrupt)
	}

	if back > 0 {
		format.PutI64(data, int(off+need), back)
		h.persist(off+need, format.CellHeaderSize)
	}
	format.PutI64(data, int(off), need)
	h.persist(off, format.CellHeaderSize)
	if front > 0 {
		format.PutI64(data, int(containOff), front)
		h.persist(containOff, format.CellHeaderSize)
		h.insertFreeCell(containOff, front)
	}

	payload := data[payloadOff : off+need]
	for i := range payload {
		payload[i] = 0
	}
	copy(payload, snapshot)
	h.persist(payloadOff, need-format.CellHeaderSize)

	// Commit point.
	format.PutI64(data, int(off), -need)
	h.persist(off, format.CellHeaderSize)

	if back > 0 {
		h.insertFreeCell(off+need, back)
	}
	if h.dt != nil {
		h.dt.Add(int(off), int(need))
	}
	h.stats.Restores++
	return nil
}

// grow appends a fresh extent large enough to hold need and hands its
// master free cell to the free lists. Pool growth failures surface as
// ErrOutOfMemory: the pool is the memory.
func (h *Heap) grow(need int64) error {
	extSize := format.AlignExtent(need + format.ExtentHeaderSize)
	extOff := h.p.Size()

	if err := h.p.Append(extSize); err != nil {
		return fmt.Errorf("grow by %d bytes (%v): %w", extSize, err, ErrOutOfMemory)
	}
	// Append remapped the pool.
	data := h.p.Bytes()

	copy(data[extOff:], format.ExtentSignature)
	format.PutU32(data, int(extOff)+format.ExtentSizeOffset, uint32(extSize))
	format.PutU64(data, int(extOff)+format.ExtentFileOffset, uint64(extOff))

	freeOff := extOff + format.ExtentHeaderSize
	freeSize := extSize - format.ExtentHeaderSize
	format.PutI64(data, int(freeOff), freeSize)
	h.persist(extOff, extSize)

	// Extent visibility is structural, not transactional: the heap-size
	// field must be durable before any cell in the extent is handed out,
	// or a crash would strand allocations past the recorded heap end.
	h.p.BumpHeapSize(uint64(extSize))
	h.persist(0, format.HeaderSize)

	h.exts = append(h.exts, extentRange{start: extOff, end: extOff + extSize})
	h.insertFreeCell(freeOff, freeSize)

	if h.dt != nil {
		h.dt.Add(0, format.HeaderSize)
		h.dt.Add(int(extOff), int(extSize))
	}
	h.stats.GrowCalls++
	h.stats.GrowBytes += extSize
	return nil
}

// initFreeLists scans the durable extent/cell structure and rebuilds the
// in-memory free-space index.
func (h *Heap) initFreeLists() error {
	data := h.p.Bytes()
	heapEnd := int64(format.HeaderSize) + int64(h.p.Header().HeapSize())
	if heapEnd > int64(len(data)) {
		return fmt.Errorf("heap size %d past mapped end %d: %w",
			heapEnd, len(data), ErrCorrupt)
	}

	cur := int64(format.HeaderSize)
	for cur < heapEnd {
		if cur+format.ExtentHeaderSize > heapEnd {
			return fmt.Errorf("truncated extent header at %d: %w", cur, ErrCorrupt)
		}
		if string(data[cur:cur+int64(format.SignatureSize)]) != string(format.ExtentSignature) {
			return fmt.Errorf("bad extent signature at %d: %w", cur, ErrCorrupt)
		}
		extSize := int64(format.ReadU32(data, int(cur)+format.ExtentSizeOffset))
		if extSize < format.ExtentHeaderSize+format.MinCellSize ||
			extSize%format.ExtentAlignment != 0 || cur+extSize > heapEnd {
			return fmt.Errorf("bad extent size %d at %d: %w", extSize, cur, ErrCorrupt)
		}
		h.exts = append(h.exts, extentRange{start: cur, end: cur + extSize})

		c := cur + format.ExtentHeaderSize
		extEnd := cur + extSize
		for c < extEnd {
			if c+format.CellHeaderSize > extEnd {
				return fmt.Errorf("truncated cell header at %d: %w", c, ErrCorrupt)
			}
			raw := format.ReadI64(data, int(c))
			sz := raw
			if sz < 0 {
				sz = -sz
			}
			if sz < format.MinCellSize || c+sz > extEnd || sz%format.CellAlignment != 0 {
				return fmt.Errorf("bad cell size %d at %d: %w", raw, c, ErrCorrupt)
			}
			if raw > 0 {
				h.insertFreeCell(c, sz)
			}
			c += sz
		}
		cur = extEnd
	}
	return nil
}

// takeCell removes and returns the best-fit free cell of at least need
// bytes, or nil when nothing fits.
func (h *Heap) takeCell(need int64) *freeCell {
	for sc := h.sizeTable.getSizeClass(need); sc < len(h.freeLists); sc++ {
		if cell := h.takeFromSizeClass(sc, need); cell != nil {
			return cell
		}
	}
	return h.takeFromLarge(need)
}

// takeFromSizeClass pops the best fit from one size-class heap.
//
// Fast path: the min-heap top is the smallest cell in the class; if it fits
// it is the best fit by definition. Slow path: the top is too small but a
// larger cell in the class may fit, so do a bounded good-enough scan,
// trading slight internal fragmentation for O(1) amortized allocation.
func (h *Heap) takeFromSizeClass(sc int, need int64) *freeCell {
	list := &h.freeLists[sc]
	if list.heap.Len() == 0 {
		return nil
	}

	if list.heap[0].size >= need {
		cell := stdheap.Pop(&list.heap).(*freeCell) //nolint:errcheck // heap contains only *freeCell
		h.dropIndexes(cell.off, cell.size)
		return cell
	}

	const (
		maxSlowPathScan = 32
		fitTolerance    = 64
	)
	bestIdx := -1
	bestSize := int64(1<<63 - 1)
	maxAcceptable := need + fitTolerance

	scanLimit := list.heap.Len()
	if scanLimit > maxSlowPathScan {
		scanLimit = maxSlowPathScan
	}
	for i := 1; i < scanLimit; i++ {
		cellSize := list.heap[i].size
		if cellSize < need {
			continue
		}
		if cellSize <= maxAcceptable {
			bestIdx = i
			break
		}
		if cellSize < bestSize {
			bestIdx = i
			bestSize = cellSize
		}
	}
	if bestIdx == -1 {
		return nil
	}

	cell := stdheap.Remove(&list.heap, bestIdx).(*freeCell) //nolint:errcheck // heap contains only *freeCell
	h.dropIndexes(cell.off, cell.size)
	return cell
}

// takeFromLarge removes the first fitting block from the large list.
func (h *Heap) takeFromLarge(need int64) *freeCell {
	var prev *largeBlock
	for curr := h.largeFree; curr != nil; prev, curr = curr, curr.next {
		if curr.size < need {
			continue
		}
		if prev == nil {
			h.largeFree = curr.next
		} else {
			prev.next = curr.next
		}
		h.dropIndexes(curr.off, curr.size)
		return &freeCell{off: curr.off, size: curr.size}
	}
	return nil
}

// insertFreeCell indexes a free cell in the appropriate structure.
func (h *Heap) insertFreeCell(off, size int64) {
	data := h.p.Bytes()
	if off < format.HeaderSize+format.ExtentHeaderSize || off+size > int64(len(data)) {
		return
	}

	if sc := h.sizeTable.getSizeClass(size); sc < len(h.freeLists) {
		cell := &freeCell{off: off, size: size}
		stdheap.Push(&h.freeLists[sc].heap, cell)
		h.byOff[off] = cell
	} else {
		h.largeFree = &largeBlock{off: off, size: size, next: h.largeFree}
	}

	h.startIdx[off] = size
	h.endIdx[off+size] = off
}

// removeFreeCell removes a free cell from its index structure.
func (h *Heap) removeFreeCell(off, size int64) {
	if sc := h.sizeTable.getSizeClass(size); sc < len(h.freeLists) {
		cell := h.byOff[off]
		if cell == nil {
			return
		}
		stdheap.Remove(&h.freeLists[sc].heap, cell.heapIndex)
		h.dropIndexes(off, size)
		return
	}

	var prev *largeBlock
	for curr := h.largeFree; curr != nil; prev, curr = curr, curr.next {
		if curr.off != off {
			continue
		}
		if prev == nil {
			h.largeFree = curr.next
		} else {
			prev.next = curr.next
		}
		h.dropIndexes(off, size)
		return
	}
}

// dropIndexes clears the offset maps for a cell leaving the free lists.
func (h *Heap) dropIndexes(off, size int64) {
	delete(h.byOff, off)
	delete(h.startIdx, off)
	delete(h.endIdx, off+size)
}

// findExtent locates the extent containing off via binary search.
func (h *Heap) findExtent(off int64) (start, end int64, found bool) {
	lo, hi := 0, len(h.exts)-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		e := h.exts[mid]
		switch {
		case off < e.start:
			hi = mid - 1
		case off >= e.end:
			lo = mid + 1
		default:
			return e.start, e.end, true
		}
	}
	return 0, 0, false
}

// findContainingFree walks the extent containing [off, off+need) and
// returns the free cell covering it.
func (h *Heap) findContainingFree(off, need int64) (int64, int64, error) {
	extStart, extEnd, found := h.findExtent(off)
	if !found {
		return 0, 0, ErrBadOffset
	}
	data := h.p.Bytes()
	c := extStart + format.ExtentHeaderSize
	for c < extEnd {
		raw := format.ReadI64(data, int(c))
		sz := raw
		if sz < 0 {
			sz = -sz
		}
		if sz < format.MinCellSize || c+sz > extEnd {
			return 0, 0, fmt.Errorf("bad cell size %d at %d: %w", raw, c, ErrCorrupt)
		}
		if c <= off && off+need <= c+sz {
			if raw < 0 {
				return 0, 0, fmt.Errorf("restore target at %d is allocated: %w",
					off, ErrNotAllocated)
			}
			return c, sz, nil
		}
		c += sz
	}
	return 0, 0, ErrBadOffset
}
