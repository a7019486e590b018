// Package tx implements goroutine-affine transactions over a pool's heap.
//
// A Manager binds a heap, a dirty tracker, and a flush policy. Exec runs a
// body function as one transaction on the calling goroutine:
//
//   - begin bumps the pool's primary sequence number and flushes the header,
//     durably marking the pool dirty before the first mutation
//   - allocations and deallocations made through New/NewArray/Delete are
//     appended to an in-memory undo log
//   - commit flushes all dirty data ranges, sets the secondary sequence
//     number equal to the primary, and flushes the header again; the pool
//     reads as clean only when everything it covers is durable
//   - an error or panic from the body rolls the undo log back in reverse
//     order, each step individually crash-atomic, then re-marks the pool
//     clean; panics are re-raised after rollback
//
// The transaction context is registered by goroutine identity, so the typed
// facade finds "the transaction on this goroutine" without a handle being
// threaded through every call. Nested Exec on the same manager joins the
// outer transaction; commit and rollback belong to the outermost level.
// Transactions from independent goroutines run concurrently: exclusion over
// heap structures is the allocator's critical section, and the manager only
// reference-counts the pool's dirty/clean header marks so the pool reads
// clean exactly when no transaction is in flight.
package tx
