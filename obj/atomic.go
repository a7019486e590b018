package obj

import (
	"fmt"
	"unsafe"

	"github.com/pmemkit/pmemkit/heap"
	"github.com/pmemkit/pmemkit/internal/txstate"
)

// NewAtomic allocates one T from h, runs construct on the zeroed object,
// and stores the resulting pointer in *out. The allocation commits only
// after construct succeeds; on construct error nothing is allocated, *out
// is untouched, and the error is returned unwrapped.
//
// The operation is crash-atomic on its own but is NOT part of any active
// transaction: it will survive a rollback of the surrounding transaction.
// Inside transactions use tx.New instead.
func NewAtomic[T any](h *heap.Heap, out *Ptr[T], construct func(*T) error) error {
	if txstate.Active() {
		warnAtomicInTx("obj.NewAtomic")
	}
	size := Sizeof[T]()
	if size == 0 {
		return fmt.Errorf("obj: cannot allocate zero-sized type")
	}

	off, err := h.Allocate(size, func(payload []byte) error {
		if construct == nil {
			return nil
		}
		return construct((*T)(unsafe.Pointer(&payload[0])))
	})
	if err != nil {
		return err
	}
	*out = Ptr[T]{pool: h.Pool().UID(), off: uint64(off)}
	return nil
}

// DeleteAtomic frees the object *p points to and nulls *p. Freeing null is
// a no-op. No destructor runs; releasing resources the object owns is the
// caller's job before the free.
//
// Like NewAtomic this bypasses any active transaction: a rollback will not
// bring the object back.
func DeleteAtomic[T any](h *heap.Heap, p *Ptr[T]) error {
	if p == nil || p.IsNull() {
		return nil
	}
	if txstate.Active() {
		warnAtomicInTx("obj.DeleteAtomic")
	}
	if p.pool != h.Pool().UID() {
		return fmt.Errorf("obj: pointer into pool %#x, heap serves pool %#x",
			p.pool, h.Pool().UID())
	}
	if err := h.Free(int64(p.off)); err != nil {
		return err
	}
	*p = Ptr[T]{}
	return nil
}
