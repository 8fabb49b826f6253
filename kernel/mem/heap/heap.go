// Package heap implements the bump-style kernel heap spec.md §4.H
// describes: a single block of 2^k contiguous physical frames mapped into
// one contiguous run of virtual pages, handed out by a monotonically
// advancing cursor. It never frees individual allocations (the bump
// allocator's defining trait; see kernel/mem/earlyalloc, which this package
// mirrors at a coarser grain, carved out of the buddy allocator instead of
// a fixed firmware-reported region).
//
// This is deliberately distinct from goruntime's sysReserve/sysMap/sysAlloc
// hooks: goruntime re-points the Go runtime's own allocator at vmm/pmm so
// that ordinary make/append/closures work anywhere in kernel code, while
// heap is the narrower bring-up allocator for kernel structures built before
// goruntime.Init can run. The frame-descriptor array is not one of them: it
// is carved from kernel/mem/earlyalloc before the heap exists. Neither is available before its own Init; calling
// Allocate before then panics, exactly as spec.md's "global trap panics
// until init" requires.
package heap

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
	"github.com/nyxkernel/core/kernel/mem/vmm"
	"github.com/nyxkernel/core/kernel/sync"
)

// ErrOutOfMemory is returned by Allocate when the remaining space in the
// heap's mapped region is smaller than the request.
var ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "heap region exhausted"}

// Allocator is a bump allocator over a single contiguous run of virtual
// pages, backed by 2^order physical frames obtained from a buddy allocator
// at construction time. The zero value is not usable; it is only exported
// so that a package-level instance can exist before Init runs.
type Allocator struct {
	lock sync.Spinlock

	begin addr.Virtual
	end   addr.Virtual
	next  addr.Virtual
}

var (
	theHeap  Allocator
	initDone bool

	errNotInitialized = &kernel.Error{Module: "heap", Message: "heap used before Init"}
)

// FrameAllocatorFn mirrors vmm.FrameAllocatorFn so this package does not
// need to import the concrete buddy.Allocator type; kmain passes
// buddyAllocator.Allocate(0) bound to a closure of this shape.
type FrameAllocatorFn func() (pmm.Number, *kernel.Error)

// New carves out 2^order contiguous physical frames via allocFn, maps them
// into a freshly located run of virtual pages (vmm's AutoContinuousMap),
// and returns an Allocator bump-allocating over that range.
func New(order mem.PageOrder, allocFn FrameAllocatorFn) (*Allocator, *kernel.Error) {
	base, err := allocFn()
	if err != nil {
		return nil, err
	}

	// allocFn already drew the first frame of the run; the
	// remaining 2^order-1 frames must be contiguous with it, so instead
	// of drawing them one at a time, a caller-supplied allocFn is
	// expected to hand back an already-contiguous block. kmain binds
	// allocFn to buddy.Allocator.Allocate(order) directly, which
	// guarantees exactly that; this function only consumes the single
	// pmm.Number it returns as the run's base.
	page, err := (vmm.ActivePageTable{}).AutoContinuousMap(base, order, vmm.FlagRW|vmm.FlagNoExecute, vmm.FrameAllocatorFn(allocFn))
	if err != nil {
		return nil, err
	}

	size := mem.Size(1) << order << mem.PageShift
	begin := page.Address()

	return &Allocator{begin: begin, end: addr.Virtual(uintptr(begin) + uintptr(size)), next: begin}, nil
}

// Init constructs the package-level heap used by Allocate. It must be
// called exactly once, after the buddy allocator and vmm are both up.
func Init(order mem.PageOrder, allocFn FrameAllocatorFn) *kernel.Error {
	a, err := New(order, allocFn)
	if err != nil {
		return err
	}
	theHeap = *a
	initDone = true
	return nil
}

// Allocate reserves size bytes from the package-level heap, aligned to
// align (which must be a power of two), and returns its virtual address.
// It panics if called before Init, matching spec.md's "global trap panics
// until init" for the bump allocator's allocation entrypoint.
func Allocate(size mem.Size, align uintptr) (addr.Virtual, *kernel.Error) {
	if !initDone {
		panic(errNotInitialized)
	}
	return theHeap.Allocate(size, align)
}

// Allocate reserves size bytes from this heap, aligned to align (which must
// be a power of two).
func (a *Allocator) Allocate(size mem.Size, align uintptr) (addr.Virtual, *kernel.Error) {
	a.lock.Acquire()
	defer a.lock.Release()

	aligned := addr.AlignUp(uintptr(a.next), align)
	need := uintptr(size)

	if uintptr(a.end) < aligned || uintptr(a.end)-aligned < need {
		return 0, ErrOutOfMemory
	}

	a.next = addr.Virtual(aligned + need)
	return addr.Virtual(aligned), nil
}

// Free is a no-op: the bump allocator never reclaims individual
// allocations, matching spec.md's description of this component. It exists
// so that callers written against a more general allocator interface do not
// need a special case for the heap.
func (a *Allocator) Free(addr.Virtual) {}
