package txstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetClear(t *testing.T) {
	require.Nil(t, Get())
	require.False(t, Active())

	v := &struct{ n int }{n: 42}
	Set(v)
	require.True(t, Active())
	require.Same(t, v, Get())

	Clear()
	require.Nil(t, Get())
}

func TestGoroutineIsolation(t *testing.T) {
	Set("parent")
	defer Clear()

	var wg sync.WaitGroup
	wg.Add(1)
	var child any
	go func() {
		defer wg.Done()
		child = Get()
	}()
	wg.Wait()

	// The child goroutine must not inherit the parent's entry.
	require.Nil(t, child)
	require.Equal(t, "parent", Get())
}
