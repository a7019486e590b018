package heap

import "errors"

var (
	// ErrOutOfMemory indicates the pool cannot satisfy the request, even
	// after attempting to grow within its configured maximum size.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrBadOffset indicates an invalid or out-of-bounds object offset.
	ErrBadOffset = errors.New("heap: bad object offset")

	// ErrNotAllocated indicates the offset does not refer to a live
	// allocation (double free, or a pointer into free space).
	ErrNotAllocated = errors.New("heap: cell not allocated")

	// ErrTooSmall indicates a zero or negative allocation size.
	ErrTooSmall = errors.New("heap: allocation size must be positive")

	// ErrCorrupt indicates the on-pool cell structure failed validation.
	ErrCorrupt = errors.New("heap: corrupt cell structure")
)
