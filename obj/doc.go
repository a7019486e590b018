// Package obj provides typed persistent pointers and the unlogged atomic
// allocation façade.
//
// A Ptr[T] names an object by pool identity and byte displacement instead of
// virtual address, so it stays valid across process restarts and across the
// pool being mapped at a different address. Dereferencing resolves the pool
// through the open-pool registry and reinterprets the payload bytes in place;
// no copy is made.
//
// NewAtomic and DeleteAtomic are crash-atomic individually but are invisible
// to any active transaction: nothing they do is undo-logged, so a subsequent
// rollback will not reverse them. Calling them inside a transaction is
// almost always a bug and is reported through the diagnostic hook.
package obj
