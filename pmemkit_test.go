package pmemkit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmemkit/pmemkit/obj"
	"github.com/pmemkit/pmemkit/pool"
	"github.com/pmemkit/pmemkit/tx"
)

type counter struct {
	Value uint64
}

func TestStoreEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.pool")
	ctx := context.Background()

	store, err := Create(path, pool.DefaultOptions)
	require.NoError(t, err)

	var ptr obj.Ptr[counter]
	require.NoError(t, store.Exec(ctx, func() error {
		p, err := tx.New(func(c *counter) error {
			c.Value = 1
			return nil
		})
		ptr = p
		return err
	}))

	require.NoError(t, store.Exec(ctx, func() error {
		ptr.Deref().Value++
		return nil
	}))
	require.NoError(t, store.Close())

	// Everything committed is there after reopen.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	again := obj.PtrAt[counter](store.Pool().UID(), ptr.Offset())
	require.NotNil(t, again.Deref())
	assert.Equal(t, uint64(2), again.Deref().Value)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.pool"))
	require.Error(t, err)
}
