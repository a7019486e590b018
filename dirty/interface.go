package dirty

import "context"

// Mapped is the slice of pool behavior the tracker needs. *pool.Pool
// satisfies it.
type Mapped interface {
	// Bytes returns the mapped file contents.
	Bytes() []byte
	// FD returns the underlying file descriptor for fdatasync.
	FD() int
}

// DirtyTracker is the minimal interface for recording dirty byte ranges.
// Components that only report modifications (the heap, the transaction
// facade) depend on this.
type DirtyTracker interface {
	// Add marks a byte range as dirty. off is the offset from the start
	// of the file, length is the number of bytes.
	Add(off, length int)
}

// FlushableTracker extends DirtyTracker with flushing. The transaction
// manager depends on this to control when dirty data is persisted.
type FlushableTracker interface {
	DirtyTracker

	// FlushDataOnly flushes only the data regions (not the header page).
	FlushDataOnly(ctx context.Context) error

	// FlushHeaderAndMeta flushes the header page and syncs according to mode.
	FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error
}
