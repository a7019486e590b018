// Package txstate keeps a registry of active transaction contexts keyed by
// goroutine identity.
//
// Transaction contexts are goroutine-affine: the registry lets the
// transactional facade find "the transaction on this goroutine" without
// threading a handle through every call, and lets the atomic facade detect
// the unsafe case of atomic allocation inside an active transaction.
//
// Entries are set by the transaction manager at begin and removed at
// commit/abort; a goroutine never observes another goroutine's entry.
package txstate

import (
	"sync"

	"github.com/petermattis/goid"
)

var (
	mu     sync.RWMutex
	byGoid = make(map[int64]any)
)

// Set registers v as the active transaction context for the calling
// goroutine, replacing any previous entry.
func Set(v any) {
	id := goid.Get()
	mu.Lock()
	byGoid[id] = v
	mu.Unlock()
}

// Clear removes the calling goroutine's entry.
func Clear() {
	id := goid.Get()
	mu.Lock()
	delete(byGoid, id)
	mu.Unlock()
}

// Get returns the calling goroutine's registered context, or nil.
func Get() any {
	id := goid.Get()
	mu.RLock()
	v := byGoid[id]
	mu.RUnlock()
	return v
}

// Active reports whether the calling goroutine has a registered context.
func Active() bool {
	return Get() != nil
}
