package pool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmemkit/pmemkit/internal/format"
)

func testPoolPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.pool")
}

func TestCreateOpenClose(t *testing.T) {
	path := testPoolPath(t)

	p, err := Create(path, Options{})
	require.NoError(t, err)
	require.Equal(t, int64(format.HeaderSize), p.Size())
	require.NotZero(t, p.UID())
	require.True(t, p.Header().IsClean())

	uid := p.UID()
	require.Same(t, p, Lookup(uid))
	require.NoError(t, p.Close())
	require.Nil(t, Lookup(uid))

	// Reopen: identity survives.
	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	require.Equal(t, uid, p2.UID())
	require.Same(t, p2, Lookup(uid))
}

func TestCreateRefusesExisting(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{})
	require.NoError(t, err)
	defer p.Close()

	_, err = Create(path, Options{})
	require.Error(t, err)
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip a byte inside the checksummed region without fixing the checksum.
	raw[format.PoolUIDOffset] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(path)
	require.ErrorContains(t, err, "checksum")
}

func TestOpenRejectsBadSignature(t *testing.T) {
	path := testPoolPath(t)
	require.NoError(t, os.WriteFile(path, make([]byte, format.HeaderSize), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, format.ErrSignatureMismatch)
}

func TestAppendGrowsAndRemaps(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(format.ExtentAlignment))
	require.Equal(t, int64(format.HeaderSize+format.ExtentAlignment), p.Size())
	require.Len(t, p.Bytes(), int(p.Size()))

	// New space is zeroed.
	tail := p.Bytes()[format.HeaderSize:]
	for _, b := range tail {
		require.Zero(t, b)
	}
}

func TestAppendRespectsMaxSize(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{MaxSize: format.HeaderSize + format.ExtentAlignment})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(format.ExtentAlignment))
	err = p.Append(format.ExtentAlignment)
	require.ErrorContains(t, err, "max size")
}

func TestTrailingSlackTruncatedOnOpen(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	// Simulate an interrupted grow: extend the file without updating the
	// header heap-size field.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(format.HeaderSize+format.ExtentAlignment))
	require.NoError(t, f.Close())

	p2, err := Open(path)
	require.NoError(t, err)
	defer p2.Close()
	require.Equal(t, int64(format.HeaderSize), p2.Size())
}

func TestBumpHeapSize(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(format.ExtentAlignment))
	p.BumpHeapSize(format.ExtentAlignment)
	require.Equal(t, uint64(format.ExtentAlignment), p.Header().HeapSize())

	// Checksum was refreshed along with the field.
	require.Equal(t, HeaderChecksum(p.Bytes()), p.Header().Checksum())
}

func TestMarkDirtyMarkClean(t *testing.T) {
	path := testPoolPath(t)
	p, err := Create(path, Options{})
	require.NoError(t, err)
	defer p.Close()

	require.True(t, p.Header().IsClean())

	seq := p.MarkDirty()
	require.Equal(t, uint32(2), seq)
	require.False(t, p.Header().IsClean())
	require.Equal(t, HeaderChecksum(p.Bytes()), p.Header().Checksum())

	p.MarkClean()
	require.True(t, p.Header().IsClean())
	require.Equal(t, seq, p.Header().Sequence2())
	require.Equal(t, HeaderChecksum(p.Bytes()), p.Header().Checksum())
}
