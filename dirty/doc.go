// Package dirty provides page-level dirty tracking for memory-mapped pools.
//
// The tracker accumulates dirty byte ranges as pool memory is modified,
// coalesces them into page-aligned non-overlapping ranges, and flushes them
// with platform-specific calls (msync on Unix, FlushViewOfFile on Windows).
// The transaction manager drives it through the ordered commit protocol:
// data ranges first, then the header page, then an optional fdatasync.
package dirty
