package tx

import (
	"fmt"
	"unsafe"

	"github.com/pmemkit/pmemkit/obj"
)

// New allocates one T inside the calling goroutine's transaction, runs
// construct on the zeroed object, and logs the allocation for rollback.
//
// A construct error aborts only this operation: the reservation is released
// before anything is logged, the heap is unchanged, and the error returns
// to the body, which decides whether the transaction continues.
func New[T any](construct func(*T) error) (obj.Ptr[T], error) {
	c, err := current()
	if err != nil {
		return obj.Ptr[T]{}, err
	}
	return allocate[T](c, 1, func(payload []byte) error {
		if construct == nil {
			return nil
		}
		return construct((*T)(unsafe.Pointer(&payload[0])))
	})
}

// NewArray allocates a zeroed array of n T inside the transaction and
// returns a pointer to its first element.
func NewArray[T any](n int) (obj.Ptr[T], error) {
	return NewArrayFunc[T](n, nil, nil)
}

// NewArrayFunc allocates an array of n T, constructing elements in index
// order. If construct fails at element k, destroy runs on elements k-1
// down to 0 before the error is returned; the allocation never happens.
func NewArrayFunc[T any](n int, construct func(i int, t *T) error, destroy func(i int, t *T)) (obj.Ptr[T], error) {
	c, err := current()
	if err != nil {
		return obj.Ptr[T]{}, err
	}
	if n <= 0 {
		return obj.Ptr[T]{}, fmt.Errorf("tx: array length %d must be positive", n)
	}
	elem := uintptr(obj.Sizeof[T]())
	return allocate[T](c, n, func(payload []byte) error {
		if construct == nil {
			return nil
		}
		base := unsafe.Pointer(&payload[0])
		for i := 0; i < n; i++ {
			t := (*T)(unsafe.Add(base, uintptr(i)*elem))
			if err := construct(i, t); err != nil {
				if destroy != nil {
					for j := i - 1; j >= 0; j-- {
						destroy(j, (*T)(unsafe.Add(base, uintptr(j)*elem)))
					}
				}
				return fmt.Errorf("construct element %d: %w", i, err)
			}
		}
		return nil
	})
}

func allocate[T any](c *Context, n int, construct func([]byte) error) (obj.Ptr[T], error) {
	size := obj.Sizeof[T]() * int64(n)
	if size == 0 {
		return obj.Ptr[T]{}, fmt.Errorf("tx: cannot allocate zero-sized type")
	}
	h := c.m.h
	off, err := h.Allocate(size, construct)
	if err != nil {
		return obj.Ptr[T]{}, err
	}
	c.log = append(c.log, allocRecord{off: off})
	return obj.PtrAt[T](h.Pool().UID(), uint64(off)), nil
}

// Delete frees the object *p points to inside the transaction and nulls
// *p. Deleting null is a no-op.
//
// The payload bytes are snapshotted before destroy runs, then destroy (if
// any) releases whatever the object owns, then the cell is freed and the
// deallocation logged. Rollback re-allocates the exact region and restores
// the snapshot, so an aborted delete brings the object back in its
// pre-destroy state; the nulled *p is the caller's to re-derive.
func Delete[T any](p *obj.Ptr[T], destroy func(*T)) error {
	c, err := current()
	if err != nil {
		return err
	}
	if p == nil || p.IsNull() {
		return nil
	}
	h := c.m.h
	if p.PoolUID() != h.Pool().UID() {
		return fmt.Errorf("%w: pointer into pool %#x, transaction on pool %#x",
			ErrCrossPool, p.PoolUID(), h.Pool().UID())
	}

	off := int64(p.Offset())
	payload, err := h.Payload(off)
	if err != nil {
		return err
	}
	snapshot := append([]byte(nil), payload...)

	if destroy != nil {
		destroy((*T)(unsafe.Pointer(&payload[0])))
	}
	if err := h.Free(off); err != nil {
		return err
	}
	c.log = append(c.log, freeRecord{off: off, snapshot: snapshot})
	*p = obj.Null[T]()
	return nil
}
