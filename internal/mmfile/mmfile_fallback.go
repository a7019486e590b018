//go:build !unix

package mmfile

import (
	"fmt"
	"os"
)

// MapRW reads the whole file into an anonymous buffer when mmap is not
// available. Changes are not written back; non-unix platforms get an
// in-memory pool with no durability guarantees.
func MapRW(f *os.File, size int64) ([]byte, error) {
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("mmfile: read fallback failed: %w", err)
	}
	return data, nil
}

// Unmap is a no-op for the fallback buffer.
func Unmap(_ []byte) error { return nil }
