//go:build unix

package mmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapRWWriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0o644))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	data, err := MapRW(f, 8192)
	require.NoError(t, err)
	require.Len(t, data, 8192)

	copy(data[100:], "hello")
	require.NoError(t, Unmap(data))

	// Shared mapping: the write must be visible through the file.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(raw[100:105]))
}

func TestMapRWBadSize(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pool")
	require.NoError(t, err)
	defer f.Close()

	_, err = MapRW(f, 0)
	require.Error(t, err)
}

func TestUnmapNilIsNoOp(t *testing.T) {
	require.NoError(t, Unmap(nil))
}
