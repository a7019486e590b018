package obj

import (
	"log"
	"sync"
	"sync/atomic"
)

// Atomic-façade misuse is advisory, not fatal: the operation still succeeds,
// it just will not be rolled back with the surrounding transaction. The
// default report is a single stderr line per process; embedders that want
// hard failures or metrics install a hook.

var (
	atomicInTxCount atomic.Int64
	atomicInTxOnce  sync.Once

	hookMu sync.RWMutex
	hook   func(op string)
)

// SetUnsafeAtomicHook installs f to be called whenever an atomic-façade
// operation runs inside an active transaction. Passing nil restores the
// default stderr warning.
func SetUnsafeAtomicHook(f func(op string)) {
	hookMu.Lock()
	hook = f
	hookMu.Unlock()
}

// UnsafeAtomicCount returns how many atomic-façade operations have run
// inside an active transaction since process start.
func UnsafeAtomicCount() int64 { return atomicInTxCount.Load() }

func warnAtomicInTx(op string) {
	atomicInTxCount.Add(1)

	hookMu.RLock()
	f := hook
	hookMu.RUnlock()
	if f != nil {
		f(op)
		return
	}
	atomicInTxOnce.Do(func() {
		log.Printf("pmemkit: %s inside an active transaction; the operation is not undo-logged and will survive rollback", op)
	})
}
