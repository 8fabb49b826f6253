// Package buddy implements the power-of-two physical frame allocator spec.md
// §4.E describes: split on allocate, XOR-buddy merge on free, one free list
// per order.
//
// gopheros never actually ships a buddy allocator in the retrieved source —
// its production allocator (kernel/mem/pmm/allocator, since superseded by
// this package — see DESIGN.md) is a bitmap allocator, and the one file in
// the pack literally named buddyAllocator (kernel/mem/physical, also
// superseded) tracks free pages with a bitmap per order rather than an
// intrusive free list. Both are grounded on the same idea this package
// keeps: one array of per-order bookkeeping (gopheros: freeBitmap[order],
// freeCount[order]; here: freeLists[order], freeCounts[order]) built once
// over the frames the early allocator hands off, then owned exclusively by
// this allocator for the rest of the kernel's lifetime. The split/merge
// algorithm itself is original, implementing spec.md §4.E directly.
package buddy

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/pmm"
	"github.com/nyxkernel/core/kernel/sync"
)

// ErrOutOfMemory is returned by Allocate when no free list at or above the
// requested order holds a block.
var ErrOutOfMemory = &kernel.Error{Module: "buddy", Message: "no free frames available at the requested order"}

// Allocator is a power-of-two physical frame allocator. The zero value is
// not usable; construct one with New.
type Allocator struct {
	lock sync.Spinlock

	table *pmm.Table

	freeLists  [mem.MaxPageOrder + 1]*pmm.Descriptor
	freeCounts [mem.MaxPageOrder + 1]uint64
}

// New constructs an Allocator over every frame in table that starts out
// Free. The caller is expected to have already marked kernel-image and
// early-allocator frames as Used in the table (as kmain.Kmain does) before calling
// New, so that only genuinely available frames are pushed onto the free
// lists.
//
// Frames are coalesced into the largest aligned power-of-two blocks the
// contiguous Free run allows, exactly as repeated calls to Free would do,
// which keeps "allocate then free everything" and "start from a
// pre-coalesced table" behaviorally identical (the cold-start scenario in
// spec.md §8.1).
func New(table *pmm.Table) *Allocator {
	a := &Allocator{table: table}

	n := table.Count()
	var i uint64
	for i < n {
		d := &table.Frames[i]
		if d.State() != pmm.Free {
			i++
			continue
		}

		// Find the largest order whose aligned block of frames, starting
		// at i, is entirely Free and still inside the table.
		order := mem.PageOrder(0)
		for order < mem.MaxPageOrder {
			blockLen := uint64(1) << (order + 1)
			if i%blockLen != 0 || i+blockLen > n || !a.runIsFree(i, blockLen) {
				break
			}
			order++
		}

		blockLen := uint64(1) << order
		d.SetOrder(order)
		a.pushFree(order, d)
		i += blockLen
	}

	return a
}

func (a *Allocator) runIsFree(start, length uint64) bool {
	for j := start; j < start+length; j++ {
		if a.table.Frames[j].State() != pmm.Free {
			return false
		}
	}
	return true
}

func (a *Allocator) pushFree(order mem.PageOrder, d *pmm.Descriptor) {
	d.ResetLink()
	d.SetState(pmm.Free)
	d.SetOrder(order)
	d.SetLink(a.freeLists[order])
	a.freeLists[order] = d
	a.freeCounts[order]++
}

// popFree removes and returns the head of freeLists[order], or nil if the
// list is empty.
func (a *Allocator) popFree(order mem.PageOrder) *pmm.Descriptor {
	d := a.freeLists[order]
	if d == nil {
		return nil
	}
	a.freeLists[order] = d.Link()
	d.ResetLink()
	a.freeCounts[order]--
	return d
}

// removeFree splices target out of freeLists[order]. target must currently
// be in that list; callers (Free's merge loop) already know this because
// they just matched it by frame number.
func (a *Allocator) removeFree(order mem.PageOrder, target *pmm.Descriptor) {
	if a.freeLists[order] == target {
		a.freeLists[order] = target.Link()
		target.ResetLink()
		a.freeCounts[order]--
		return
	}

	prev := a.freeLists[order]
	for prev != nil {
		next := prev.Link()
		if next == target {
			following := target.Link()
			target.ResetLink()
			prev.ResetLink()
			prev.SetLink(following)
			a.freeCounts[order]--
			return
		}
		prev = next
	}
}

// Allocate reserves a single contiguous block of 2^order frames. It returns
// ErrOutOfMemory if order is out of range or if no sufficiently large block
// is free.
func (a *Allocator) Allocate(order mem.PageOrder) (pmm.Number, *kernel.Error) {
	if order > mem.MaxPageOrder {
		return pmm.InvalidNumber, ErrOutOfMemory
	}

	a.lock.Acquire()
	defer a.lock.Release()

	k := order
	for k <= mem.MaxPageOrder && a.freeLists[k] == nil {
		k++
	}
	if k > mem.MaxPageOrder {
		return pmm.InvalidNumber, ErrOutOfMemory
	}

	d := a.popFree(k)
	d.SetState(pmm.Used)

	// Split the block down from order k to order, pushing each freed half
	// (the buddy at each intermediate level) onto its own free list.
	for j := k; j > order; j-- {
		buddyNum := d.Number() ^ pmm.Number(uint64(1)<<(j-1))
		buddy := a.table.Descriptor(buddyNum)
		a.pushFree(j-1, buddy)
	}

	d.SetOrder(order)
	return d.Number(), nil
}

// Free returns a previously allocated block (identified by the frame number
// Allocate returned) to the pool, coalescing it with its buddy at every
// order where the buddy is itself Free and of matching order, per spec.md
// §4.E's tie-break rule: the lower-addressed of the pair survives as the
// merged block's representative.
func (a *Allocator) Free(n pmm.Number) {
	a.lock.Acquire()
	defer a.lock.Release()

	d := a.table.Descriptor(n)
	if d == nil {
		panic("buddy: Free called on a frame outside the managed range")
	}
	if d.State() != pmm.Used {
		panic("buddy: Free called on a frame that is not Used")
	}

	d.SetState(pmm.Free)

	for j := d.Order(); j < mem.MaxPageOrder; j++ {
		buddyNum := d.Number() ^ pmm.Number(uint64(1)<<j)
		buddy := a.table.Descriptor(buddyNum)

		if buddy == nil || buddy.State() != pmm.Free || buddy.Order() != j {
			break
		}

		a.removeFree(j, buddy)

		if buddy.Number() < d.Number() {
			d = buddy
		}
		d.SetOrder(j + 1)
	}

	a.pushFree(d.Order(), d)
}

// CountFreeObjs returns the total number of free frames across every order,
// i.e. sum(freeCounts[k] * 2^k).
func (a *Allocator) CountFreeObjs() uint64 {
	a.lock.Acquire()
	defer a.lock.Release()

	var total uint64
	for k := mem.PageOrder(0); k <= mem.MaxPageOrder; k++ {
		total += a.freeCounts[k] << k
	}
	return total
}

// FreeCount returns the number of free blocks at exactly the given order.
func (a *Allocator) FreeCount(order mem.PageOrder) uint64 {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.freeCounts[order]
}
