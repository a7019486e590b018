package tx

import "errors"

var (
	// ErrNoActiveTransaction indicates a transactional operation was called
	// on a goroutine with no transaction in progress.
	ErrNoActiveTransaction = errors.New("tx: no active transaction on this goroutine")

	// ErrCrossPool indicates a transactional operation referenced an object
	// or manager belonging to a different pool than the active transaction.
	ErrCrossPool = errors.New("tx: object belongs to a different pool")

	// ErrCrossManager indicates Exec was called while the goroutine is
	// already inside a transaction belonging to a different manager.
	ErrCrossManager = errors.New("tx: goroutine already in a transaction on a different pool")
)
