// Package sync provides synchronization primitives for code that runs
// without an underlying scheduler. There is a single logical CPU and no
// preemption inside critical sections (spec.md §5), so a spinlock only
// needs to guard against re-entrancy across nested calls, not contention
// from another core.
package sync

import "sync/atomic"

// Spinlock implements a lock where the caller busy-waits until the lock
// becomes available. Re-acquiring a lock already held by the current
// execution context deadlocks, same as any non-reentrant lock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
}

// TryToAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release while the lock is free
// has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
