// Package pmemkit assembles the pool, heap, and transaction layers into a
// single handle for the common case of one process owning one pool file.
//
// Most programs only need this package plus obj and tx:
//
//	store, err := pmemkit.Create("app.pool", pool.DefaultOptions)
//	...
//	err = store.Exec(ctx, func() error {
//		root, err := tx.New(func(r *Root) error { r.Answer = 42; return nil })
//		...
//	})
//
// The lower-level packages stay importable for callers that need a custom
// flush policy, their own size-class configuration, or direct heap access.
package pmemkit

import (
	"context"

	"github.com/pmemkit/pmemkit/dirty"
	"github.com/pmemkit/pmemkit/heap"
	"github.com/pmemkit/pmemkit/pool"
	"github.com/pmemkit/pmemkit/tx"
)

// Store is an open pool with its heap and transaction manager wired to a
// shared dirty tracker, so transactional mutations are in the flush set at
// commit.
type Store struct {
	pool    *pool.Pool
	tracker *dirty.Tracker
	heap    *heap.Heap
	mgr     *tx.Manager
}

// Create makes a new pool file at path and opens it as a Store.
func Create(path string, opts pool.Options) (*Store, error) {
	p, err := pool.Create(path, opts)
	if err != nil {
		return nil, err
	}
	return assemble(p)
}

// Open maps an existing pool file at path as a Store.
func Open(path string) (*Store, error) {
	p, err := pool.Open(path)
	if err != nil {
		return nil, err
	}
	return assemble(p)
}

func assemble(p *pool.Pool) (*Store, error) {
	tracker := dirty.NewTracker(p)
	h, err := heap.Open(p, tracker, nil)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return &Store{
		pool:    p,
		tracker: tracker,
		heap:    h,
		mgr:     tx.NewManager(h, tracker, dirty.FlushAuto),
	}, nil
}

// Exec runs body as a transaction, see tx.Manager.Exec.
func (s *Store) Exec(ctx context.Context, body func() error) error {
	return s.mgr.Exec(ctx, body)
}

// Pool returns the underlying pool.
func (s *Store) Pool() *pool.Pool { return s.pool }

// Heap returns the underlying allocator.
func (s *Store) Heap() *heap.Heap { return s.heap }

// Tx returns the transaction manager.
func (s *Store) Tx() *tx.Manager { return s.mgr }

// Close unmaps and closes the pool. Pointers into the store are invalid
// until it is opened again.
func (s *Store) Close() error {
	return s.pool.Close()
}
