package obj

import (
	"unsafe"

	"github.com/pmemkit/pmemkit/pool"
)

// Ptr is a persistent pointer to a T stored in a pool. The zero value is
// the null pointer. Ptr values are plain data: they may themselves be stored
// inside pool memory and remain meaningful after reopen, because they record
// a pool identity and a displacement, never a virtual address.
type Ptr[T any] struct {
	pool uint64 // pool UID, see pool.Pool.UID
	off  uint64 // payload displacement from the start of the file
}

// Null returns the null pointer for T.
func Null[T any]() Ptr[T] { return Ptr[T]{} }

// PtrAt reconstructs a pointer from its stored parts. It performs no
// validation; dereferencing an offset that was never allocated for a T is
// the caller's responsibility, exactly as with unsafe.Pointer.
func PtrAt[T any](poolUID, off uint64) Ptr[T] {
	return Ptr[T]{pool: poolUID, off: off}
}

// IsNull reports whether p is the null pointer.
func (p Ptr[T]) IsNull() bool { return p.off == 0 }

// Equal reports whether p and q name the same object.
func (p Ptr[T]) Equal(q Ptr[T]) bool { return p == q }

// PoolUID returns the identity of the pool p points into, 0 for null.
func (p Ptr[T]) PoolUID() uint64 { return p.pool }

// Offset returns the payload displacement, 0 for null.
func (p Ptr[T]) Offset() uint64 { return p.off }

// Deref returns a live *T aliasing the object's bytes inside the mapped
// pool. It returns nil if p is null or its pool is not currently open.
//
// The returned pointer is only valid while the pool stays open and unmoved;
// growing the pool can remap it, so do not cache the result across
// allocations. Re-deref instead, it is two map lookups.
func (p Ptr[T]) Deref() *T {
	pl := p.resolve()
	if pl == nil {
		return nil
	}
	data := pl.Bytes()
	var t T
	// The whole T must lie inside the mapping, not just its first byte.
	if p.off >= uint64(len(data)) || uint64(unsafe.Sizeof(t)) > uint64(len(data))-p.off {
		return nil
	}
	return (*T)(unsafe.Pointer(&data[p.off]))
}

// Index dereferences element i of an array of T starting at p. Bounds are
// not tracked; the caller must stay within the allocated payload.
func (p Ptr[T]) Index(i int) *T {
	pl := p.resolve()
	if pl == nil || i < 0 {
		return nil
	}
	var t T
	size := uint64(unsafe.Sizeof(t))
	off := p.off + uint64(i)*size
	data := pl.Bytes()
	if off >= uint64(len(data)) || size > uint64(len(data))-off {
		return nil
	}
	return (*T)(unsafe.Pointer(&data[off]))
}

// Elem returns the pointer to element i without dereferencing it.
func (p Ptr[T]) Elem(i int) Ptr[T] {
	if p.IsNull() || i < 0 {
		return Ptr[T]{}
	}
	var t T
	return Ptr[T]{pool: p.pool, off: p.off + uint64(i)*uint64(unsafe.Sizeof(t))}
}

func (p Ptr[T]) resolve() *pool.Pool {
	if p.off == 0 {
		return nil
	}
	return pool.Lookup(p.pool)
}

// Sizeof returns the in-pool size of one T. Exposed for callers that need
// to reason about array layouts.
func Sizeof[T any]() int64 {
	var t T
	return int64(unsafe.Sizeof(t))
}
