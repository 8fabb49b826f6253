// Package earlyalloc implements the linear "bump" allocator spec.md §4.C
// calls the early allocator: a single [begin, end) region handed out one
// typed block at a time, used only during bring-up to carve out the frame
// descriptor array (kernel/mem/pmm) before the buddy allocator (kernel/mem/pmm/buddy)
// exists to take over.
//
// gopheros' closest analogue, BootMemAllocator (kernel/mem/pfn and
// kernel/mem/pmm/allocator), re-scans the whole firmware memory map on every
// call and only ever hands out single page frames. spec.md wants something
// simpler and more general: one already-chosen contiguous region, and
// type-aligned allocations of arbitrary size, so this package is a fresh
// implementation of that narrower contract, written in gopheros' style:
// a zero-alloc struct, a *kernel.Error sentinel instead of errors.New, and
// a boring linear scan rather than anything clever.
package earlyalloc

import (
	"unsafe"

	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
)

// ErrOutOfSpace is returned by Allocate when servicing the request would
// advance begin past end.
var ErrOutOfSpace = &kernel.Error{Module: "early_alloc", Message: "requested allocation exceeds early allocator capacity"}

// Allocator is a linear bump allocator over a single contiguous physical
// region. It never frees; once bring-up is done with it, the unconsumed
// remainder of its region is released to the buddy allocator (see
// kmain.Kmain and pmm/buddy.New).
type Allocator struct {
	begin addr.Physical
	end   addr.Physical
}

// New creates an Allocator over [begin, end).
func New(begin, end addr.Physical) *Allocator {
	return &Allocator{begin: begin, end: end}
}

// AlignBegin rounds the current cursor up to the given alignment, which
// must be a power of two. It is mostly useful for callers that want to
// guarantee the *next* Allocate starts on a specific boundary (e.g. a page)
// without actually consuming a typed allocation to do so.
func (a *Allocator) AlignBegin(align uintptr) {
	a.begin = addr.Physical(addr.AlignUp(uintptr(a.begin), align))
}

// Capacity returns the number of bytes still available.
func (a *Allocator) Capacity() mem.Size {
	if a.end < a.begin {
		return 0
	}
	return mem.Size(a.end - a.begin)
}

// IntoAddrBegin surrenders the current cursor, consuming the allocator. It
// is used once bring-up hands the remainder of the early region over to the
// buddy allocator.
func (a *Allocator) IntoAddrBegin() addr.Physical {
	return a.begin
}

// Allocate carves out space for n contiguous values of type T, aligning the
// cursor up to T's alignment first, and returns a pointer to the first one.
// The returned memory is not zeroed.
func Allocate[T any](a *Allocator, n int) (*T, *kernel.Error) {
	var zero T
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)

	alignedBegin := addr.AlignUp(uintptr(a.begin), align)
	need := size * uintptr(n)

	if need > 0 && (uintptr(a.end) < alignedBegin || uintptr(a.end)-alignedBegin < need) {
		return nil, ErrOutOfSpace
	}

	a.begin = addr.Physical(alignedBegin + need)
	return (*T)(unsafe.Pointer(alignedBegin)), nil
}
