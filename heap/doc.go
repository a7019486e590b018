// Package heap implements the crash-atomic allocator over a mapped pool.
//
// The heap area of a pool is a sequence of page-aligned extents, each holding
// a run of cells. A cell starts with a signed 8-byte size word: negative
// means allocated, positive means free. Free space is indexed in memory by
// segregated size-class min-heaps (perfect best-fit in O(log n)), with
// offset maps enabling O(1) coalescing; the in-memory index is rebuilt from
// the cell headers when a pool is opened.
//
// # Crash atomicity
//
// Every durable mutation is ordered so that each intermediate persistent
// state parses as a valid heap:
//
//   - Allocate writes the split remainder's free header first, then the
//     constructed payload, and finally flips the cell's size word to the
//     allocated (negative) value. The final header flush is the commit
//     point: a crash before it leaves the cell observably free, a crash
//     after it leaves the object allocated and fully constructed.
//   - Free flips the size word positive and flushes it (commit point), then
//     coalesces neighbors. Merging rewrites only the surviving cell's size
//     word, so any interleaved crash leaves a scannable cell run.
//
// The allocator has no notion of transactions. It may be called while a
// transaction is active on the calling goroutine, but such calls are never
// added to any rollback log; the tx package layers undo logging on top.
package heap
