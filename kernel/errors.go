package kernel

import "errors"

// Expected, recoverable outcomes returned to the caller. A take or send that
// cannot complete never leaves partial state behind.
var (
	// ErrWouldBlock is returned by a zero-timeout operation that cannot
	// complete immediately, and by every interrupt-context operation that
	// would otherwise have to wait.
	ErrWouldBlock = errors.New("would block")

	// ErrTimedOut is returned when a blocking operation's timeout elapses
	// before the operation is satisfied.
	ErrTimedOut = errors.New("timed out")

	// ErrNotOwner is returned by a mutex give from a task that does not
	// hold the mutex.
	ErrNotOwner = errors.New("not owner")

	// ErrCapacityExceeded is returned by a give or send past a primitive's
	// maximum count or storage. The primitive is left untouched.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
