//go:build linux || freebsd

package heap

import (
	"golang.org/x/sys/unix"
)

const persistPageSize = 4096

// persistRange msyncs the pages covering [off, off+n). msync requires a
// page-aligned start address, so the range is widened to page boundaries.
func persistRange(data []byte, off, n int64) {
	start := off &^ (persistPageSize - 1)
	end := (off + n + persistPageSize - 1) &^ (persistPageSize - 1)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if start >= end {
		return
	}
	//nolint:errcheck // best-effort ordering hint, see persist
	unix.Msync(data[start:end], unix.MS_SYNC)
}
