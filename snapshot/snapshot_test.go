package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmemkit/pmemkit/heap"
	"github.com/pmemkit/pmemkit/pool"
)

func newPopulatedPool(t *testing.T) (*pool.Pool, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.pool")
	p, err := pool.Create(path, pool.DefaultOptions)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	h, err := heap.Open(p, nil, nil)
	require.NoError(t, err)
	off, err := h.Allocate(128, func(b []byte) error {
		for i := range b {
			b[i] = byte(i)
		}
		return nil
	})
	require.NoError(t, err)
	return p, off
}

func TestSaveAndRestoreRoundtrip(t *testing.T) {
	p, off := newPopulatedPool(t)
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "backup.pmsn")

	require.NoError(t, Save(snapPath, p))

	info, err := ReadInfoFile(snapPath)
	require.NoError(t, err)
	assert.Equal(t, p.UID(), info.PoolUID)
	assert.Equal(t, p.Size(), info.RawSize)
	assert.WithinDuration(t, time.Now(), info.Created, time.Minute)

	restoredPath := filepath.Join(dir, "restored.pool")
	require.NoError(t, RestoreFile(snapPath, restoredPath))

	want, err := heap.Open(p, nil, nil)
	require.NoError(t, err)
	wantPayload, err := want.Payload(off)
	require.NoError(t, err)

	rp, err := pool.Open(restoredPath)
	require.NoError(t, err)
	defer rp.Close()
	assert.Equal(t, p.UID(), rp.UID())

	res := heap.Check(rp)
	require.True(t, res.OK(), "problems: %v", res.Problems)
	assert.Equal(t, 1, res.AllocatedCells)

	rh, err := heap.Open(rp, nil, nil)
	require.NoError(t, err)
	gotPayload, err := rh.Payload(off)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(wantPayload, gotPayload))
}

func TestWriteRefusesDirtyPool(t *testing.T) {
	p, _ := newPopulatedPool(t)
	p.MarkDirty()
	defer p.MarkClean()

	var buf bytes.Buffer
	assert.ErrorIs(t, Write(&buf, p), ErrPoolDirty)
}

func TestRestoreRefusesExistingTarget(t *testing.T) {
	p, _ := newPopulatedPool(t)
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "backup.pmsn")
	require.NoError(t, Save(snapPath, p))

	taken := filepath.Join(dir, "taken.pool")
	require.NoError(t, os.WriteFile(taken, []byte("occupied"), 0o644))

	err := RestoreFile(snapPath, taken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The occupant was not touched.
	got, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, []byte("occupied"), got)
}

func TestReadInfoRejectsGarbage(t *testing.T) {
	_, err := ReadInfo(bytes.NewReader([]byte("this is not a snapshot file at all")))
	assert.ErrorIs(t, err, ErrNotSnapshot)
}
