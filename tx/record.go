package tx

import "github.com/pmemkit/pmemkit/heap"

// The undo log is a slice of tagged records, replayed in reverse on abort.
// Each revert is itself crash-atomic at the heap level, so a crash during
// rollback leaves a heap that recovery can roll back further or discard.

type record interface {
	revert(h *heap.Heap) error
}

// allocRecord undoes a transactional allocation by freeing it.
type allocRecord struct {
	off int64 // payload offset
}

func (r allocRecord) revert(h *heap.Heap) error {
	return h.Free(r.off)
}

// freeRecord undoes a transactional deallocation by re-allocating the exact
// region and restoring the payload bytes captured before the free.
type freeRecord struct {
	off      int64
	snapshot []byte
}

func (r freeRecord) revert(h *heap.Heap) error {
	return h.Restore(r.off, r.snapshot)
}

// rollback replays log in reverse. Reverse order is what makes freeRecord
// reverts sound: any allocation that later covered the freed region was
// logged after the free, so it has already been undone by the time the
// restore runs. The first failure is returned but replay continues, undoing
// as much as possible.
func rollback(h *heap.Heap, log []record) error {
	var firstErr error
	for i := len(log) - 1; i >= 0; i-- {
		if err := log[i].revert(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
