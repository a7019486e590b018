package dirty

import (
	"context"
	"sort"
	"sync"
)

const (
	// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
	defaultRangeCapacity = 64

	// standardPageSize is the typical OS page size (4KB).
	standardPageSize = 4096
)

// FlushMode controls durability guarantees for transaction commits.
type FlushMode int

const (
	// FlushAuto provides safe defaults: msync dirty data pages, then
	// fdatasync after the header write. On macOS F_FULLFSYNC is used.
	FlushAuto FlushMode = iota

	// FlushDataOnly only msyncs dirty data pages. The caller is
	// responsible for syncing later; use when batching transactions.
	FlushDataOnly

	// FlushFull is the power-loss-paranoid mode: msync data, msync
	// header, fdatasync the descriptor (F_FULLFSYNC on macOS).
	FlushFull
)

// Range represents a dirty byte range (absolute file offsets).
type Range struct {
	Off int64
	Len int64
}

// Tracker accumulates dirty ranges and flushes them efficiently. Adds and
// flushes may come from different goroutines (the allocator records ranges
// while the transaction manager drives flushes), so the range list is
// mutex-protected.
type Tracker struct {
	m        Mapped
	mu       sync.Mutex
	ranges   []Range
	pageSize int64
}

// NewTracker creates a dirty tracker over the given mapping.
func NewTracker(m Mapped) *Tracker {
	return &Tracker{
		m:        m,
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: standardPageSize,
	}
}

// Add records a dirty range. Ranges are page-aligned and coalesced at flush
// time, so Add itself is a cheap append.
func (t *Tracker) Add(off, length int) {
	t.mu.Lock()
	t.ranges = append(t.ranges, Range{
		Off: int64(off),
		Len: int64(length),
	})
	t.mu.Unlock()
}

// FlushDataOnly flushes all dirty data ranges (not the header page) to disk,
// then clears the range list. If the context is cancelled mid-flush, some
// ranges may have been flushed while others have not.
func (t *Tracker) FlushDataOnly(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ranges) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data := t.m.Bytes()
	if len(data) == 0 {
		return nil
	}
	if err := t.flushRanges(data); err != nil {
		return err
	}

	t.ranges = t.ranges[:0]
	return nil
}

// FlushHeaderAndMeta flushes the header page (offset 0, one page) and then
// syncs the file descriptor according to mode.
func (t *Tracker) FlushHeaderAndMeta(ctx context.Context, mode FlushMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := t.m.Bytes()
	if len(data) == 0 {
		return nil
	}
	headerLen := int(t.pageSize)
	if headerLen > len(data) {
		headerLen = len(data)
	}
	if err := msync(data[:headerLen]); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == FlushDataOnly {
		return nil
	}
	return fdatasync(t.m.FD(), mode == FlushFull)
}

// Reset clears all tracked ranges without flushing. Used when a transaction
// aborts after its dirty pages have been logically undone.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.ranges = t.ranges[:0]
	t.mu.Unlock()
}

// Ranges returns a copy of the raw, uncoalesced ranges (for tests).
func (t *Tracker) Ranges() []Range {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Range, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// CoalescedRanges returns the page-aligned, merged ranges that a flush would
// write (for tests).
func (t *Tracker) CoalescedRanges() []Range {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coalesce()
}

// coalesce page-aligns all ranges, sorts them, and merges
// overlapping/adjacent ranges into a non-overlapping sorted slice.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize
		end := r.Off + r.Len
		if end%t.pageSize != 0 {
			end = ((end / t.pageSize) + 1) * t.pageSize
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for i := 1; i < len(aligned); i++ {
		next := aligned[i]
		if next.Off <= current.Off+current.Len {
			end := current.Off + current.Len
			if nextEnd := next.Off + next.Len; nextEnd > end {
				end = nextEnd
			}
			current.Len = end - current.Off
		} else {
			merged = append(merged, current)
			current = next
		}
	}
	merged = append(merged, current)

	return merged
}
