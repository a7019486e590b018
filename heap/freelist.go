package heap

// freeList is a size-class-specific free list using a min-heap.
type freeList struct {
	heap freeCellHeap // min-heap keyed on size
}

// freeCell represents a free cell in the in-memory index.
type freeCell struct {
	off       int64 // absolute file offset of the cell header
	size      int64 // total size including header
	heapIndex int   // position in heap (for heap.Remove)
}

// freeCellHeap implements heap.Interface as a min-heap keyed on cell size,
// so the top is always the best fit for any request it satisfies.
type freeCellHeap []*freeCell

func (h *freeCellHeap) Len() int { return len(*h) }

func (h *freeCellHeap) Less(i, j int) bool {
	return (*h)[i].size < (*h)[j].size
}

func (h *freeCellHeap) Swap(i, j int) {
	(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
	(*h)[i].heapIndex = i
	(*h)[j].heapIndex = j
}

func (h *freeCellHeap) Push(x any) {
	cell := x.(*freeCell) //nolint:errcheck // heap.Interface contract guarantees type
	cell.heapIndex = len(*h)
	*h = append(*h, cell)
}

func (h *freeCellHeap) Pop() any {
	old := *h
	n := len(old)
	cell := old[n-1]
	cell.heapIndex = -1
	*h = old[0 : n-1]
	return cell
}

// largeBlock tracks free cells at or above the MediumMax threshold in a
// simple linked list; large frees are rare enough that a scan is fine.
type largeBlock struct {
	off  int64
	size int64
	next *largeBlock
}
