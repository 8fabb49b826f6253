// Package sync provides synchronization primitives for the kernel core.
// These exist because kernel/mem and kernel/irq cannot depend on the Go
// runtime's own sync.Mutex before goroutine scheduling is available (and,
// even once it is, kernel code running with interrupts enabled cannot block
// the way a hosted goroutine can). The buddy allocator and the heap are
// guarded by one of these; the active page table and the PIC/PIT port
// accesses take no lock.
package sync

import "sync/atomic"

// TODO: replace with a real yield function once context-switching (kernel/sched)
// grows beyond the single always-nil-slots milestone.
var yieldFn func()

// Spinlock implements a lock where the caller busy-waits until the lock
// becomes available. It never sleeps, never allocates, and is safe to use
// before the Go runtime's own scheduler is up.
//
// Acquiring a Spinlock already held by the current context deadlocks;
// callers must never hold one across a call that could itself try to
// acquire it (in particular: never hold the allocator lock across a call
// that could itself allocate, per spec.md §5's locking discipline).
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired.
func (l *Spinlock) Acquire() {
	archAcquireSpinlock(&l.state, 1)
}

// TryToAcquire attempts to acquire the lock without blocking, returning
// true on success.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock. Calling Release on a free lock is a
// no-op.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// archAcquireSpinlock is the arch-specific busy-wait loop for acquiring the
// lock; on amd64 it executes PAUSE between attempts to help the core's
// power/thermal management and hyper-threaded sibling.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
