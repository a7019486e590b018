package pool

import "sync"

// Registry of open pools keyed by UID. Persistent pointers store a pool UID
// rather than a pool handle, so dereferencing resolves through this map and
// stays valid across close/reopen of the same pool file.

var (
	regMu sync.RWMutex
	open  = make(map[uint64]*Pool)
)

func register(p *Pool) {
	regMu.Lock()
	open[p.uid] = p
	regMu.Unlock()
}

func deregister(p *Pool) {
	if p == nil || p.uid == 0 {
		return
	}
	regMu.Lock()
	if open[p.uid] == p {
		delete(open, p.uid)
	}
	regMu.Unlock()
}

// Lookup returns the open pool with the given UID, or nil if that pool is
// not currently mapped.
func Lookup(uid uint64) *Pool {
	regMu.RLock()
	p := open[uid]
	regMu.RUnlock()
	return p
}
