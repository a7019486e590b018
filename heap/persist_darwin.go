//go:build darwin

package heap

import (
	"golang.org/x/sys/unix"
)

// persistRange on Darwin msyncs the whole mapping. Sub-range msync is
// unreliable there, and the pool-level flush path adds F_FULLFSYNC for the
// real durability barrier at commit.
func persistRange(data []byte, off, n int64) {
	_ = off
	_ = n
	//nolint:errcheck // best-effort ordering hint, see persist
	unix.Msync(data, unix.MS_SYNC)
}
