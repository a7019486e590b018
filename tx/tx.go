package tx

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pmemkit/pmemkit/dirty"
	"github.com/pmemkit/pmemkit/heap"
	"github.com/pmemkit/pmemkit/internal/txstate"
)

// Status is the lifecycle state of a transaction context.
type Status int

const (
	StatusNone Status = iota
	StatusActive
	StatusAborting
	StatusCommitted
)

// Manager runs transactions against one heap. The tracker must be the same
// one the heap was opened with, so that every heap mutation made inside a
// transaction is in the flush set at commit.
//
// Transactions from independent goroutines run concurrently; mutual
// exclusion over heap structures is the allocator's critical section, not
// the manager's. The manager only coordinates the pool's dirty/clean marks:
// the header goes dirty when the first transaction begins and reads clean
// again only after the last concurrent transaction ends.
type Manager struct {
	h       *heap.Heap
	tracker *dirty.Tracker
	mode    dirty.FlushMode

	// mu guards the active count, the poisoned flag, and the header
	// sequence fields. It is held only around begin/end bookkeeping,
	// never across a transaction body.
	mu       sync.Mutex
	active   int
	poisoned bool // a rollback failed; never mark the pool clean again
}

// NewManager builds a transaction manager over h. mode selects the commit
// durability barrier, normally dirty.FlushAuto.
func NewManager(h *heap.Heap, tracker *dirty.Tracker, mode dirty.FlushMode) *Manager {
	return &Manager{h: h, tracker: tracker, mode: mode}
}

// Heap returns the heap this manager transacts against.
func (m *Manager) Heap() *heap.Heap { return m.h }

// Context is the per-transaction state registered under the goroutine that
// began it. It is not safe for use from other goroutines.
type Context struct {
	m      *Manager
	depth  int
	log    []record
	status Status
	err    error // first inner failure; forces abort at the outermost level
}

// Status returns the context's lifecycle state.
func (c *Context) Status() Status { return c.status }

// Depth returns the nesting depth, 0 for the outermost level.
func (c *Context) Depth() int { return c.depth }

// Exec runs body as a transaction on the calling goroutine.
//
// If a transaction from this manager is already active on the goroutine,
// body joins it: no new begin mark, no commit, and a failure marks the
// whole transaction for rollback at the outermost level even if an
// intermediate caller swallows the error.
//
// Otherwise Exec begins a transaction, runs body, and commits if it returns
// nil. A non-nil return or a panic rolls back every New/Delete made through
// the transaction, in reverse order, and panics are re-raised afterwards.
func (m *Manager) Exec(ctx context.Context, body func() error) error {
	if v := txstate.Get(); v != nil {
		c, ok := v.(*Context)
		if !ok || c.m != m {
			return ErrCrossManager
		}
		c.depth++
		err := body()
		c.depth--
		if err != nil && c.err == nil {
			c.err = err
		}
		return err
	}

	if err := m.enter(ctx); err != nil {
		return err
	}

	c := &Context{m: m, status: StatusActive}
	txstate.Set(c)
	defer txstate.Clear()

	defer func() {
		if r := recover(); r != nil {
			c.abort(ctx)
			panic(r)
		}
	}()

	err := body()
	if err == nil {
		err = c.err
	}
	if err != nil {
		c.abort(ctx)
		return err
	}
	return c.commit(ctx)
}

// enter registers one more active transaction. The first one in durably
// marks the pool dirty: recovery trusts a clean header, so a crash
// mid-transaction has to find sequence numbers that disagree.
func (m *Manager) enter(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active++
	if m.active > 1 {
		return nil
	}
	m.h.Pool().MarkDirty()
	if err := m.tracker.FlushHeaderAndMeta(ctx, dirty.FlushDataOnly); err != nil {
		m.active--
		m.h.Pool().MarkClean()
		return fmt.Errorf("tx: persist begin mark: %w", err)
	}
	return nil
}

// leave deregisters a finished transaction. The last one out marks the pool
// clean and flushes the header, unless a failed rollback poisoned the pool,
// in which case the dirty mark stays so recovery and checkers see it.
func (m *Manager) leave(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active--
	if m.active > 0 || m.poisoned {
		return nil
	}
	m.h.Pool().MarkClean()
	return m.tracker.FlushHeaderAndMeta(ctx, m.mode)
}

func (c *Context) commit(ctx context.Context) error {
	m := c.m
	if err := m.tracker.FlushDataOnly(ctx); err != nil {
		c.status = StatusNone
		c.log = nil
		// The data flush failed; end the transaction without claiming
		// its effects are durable, and keep the pool marked dirty.
		m.mu.Lock()
		m.poisoned = true
		m.active--
		m.mu.Unlock()
		return fmt.Errorf("tx: flush data at commit: %w", err)
	}
	if err := m.leave(ctx); err != nil {
		return fmt.Errorf("tx: flush header at commit: %w", err)
	}
	c.status = StatusCommitted
	c.log = nil
	return nil
}

func (c *Context) abort(ctx context.Context) {
	m := c.m
	c.status = StatusAborting
	if err := rollback(m.h, c.log); err != nil {
		// The heap could not be fully restored. Poison the manager so
		// the pool is never marked clean again in this process.
		log.Printf("pmemkit: transaction rollback incomplete: %v", err)
		m.mu.Lock()
		m.poisoned = true
		m.active--
		m.mu.Unlock()
		c.status = StatusNone
		c.log = nil
		return
	}
	// The heap is back at its pre-transaction state. Best effort: a flush
	// failure here leaves the dirty mark in place, the conservative
	// outcome.
	if err := m.tracker.FlushDataOnly(ctx); err != nil {
		m.mu.Lock()
		m.poisoned = true
		m.active--
		m.mu.Unlock()
	} else {
		_ = m.leave(ctx)
	}
	c.status = StatusNone
	c.log = nil
}

// current returns the calling goroutine's active transaction context.
func current() (*Context, error) {
	c, ok := txstate.Get().(*Context)
	if !ok || c == nil || c.status != StatusActive {
		return nil, ErrNoActiveTransaction
	}
	return c, nil
}

// Active reports whether the calling goroutine is inside a transaction.
func Active() bool {
	_, err := current()
	return err == nil
}
