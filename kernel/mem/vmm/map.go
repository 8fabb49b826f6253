package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

var (
	// flushTLBEntryFn lets tests substitute flushTLBEntry, which faults
	// outside ring 0.
	flushTLBEntryFn = flushTLBEntry
)

// FrameAllocatorFn allocates a single physical frame, used whenever Map (or
// an intermediate NextLevelCreate) needs a fresh page table frame.
type FrameAllocatorFn func() (pmm.Number, *kernel.Error)

// FrameFreeFn releases a single physical frame back to an allocator (e.g.
// buddy.Allocator.Free bound to a closure), used by UnmapAndFree.
type FrameFreeFn func(pmm.Number)

// entryIndex extracts the index a virtual address occupies at the given
// page table level (0 = L4 .. pageLevels-1 = L1).
func entryIndex(virtAddr uintptr, level uint8) int {
	return int((virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1))
}

// Map establishes a mapping from page to frame in the currently active L4
// table, creating whatever L3/L2/L1 tables are missing along the way via
// allocFn. It returns ErrAlreadyMapped if the L1 entry is already present.
func Map(page Page, frame pmm.Number, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	virtAddr := uintptr(page.Address())

	table := RootTable()
	for table.HasNext() {
		next, err := table.NextLevelCreate(entryIndex(virtAddr, table.Level()), allocFn)
		if err != nil {
			return err
		}
		table = next
	}

	pte := table.Entry(entryIndex(virtAddr, table.Level()))
	if pte.HasFlags(FlagPresent) {
		return ErrAlreadyMapped
	}

	pte.Clear()
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | flags)
	flushTLBEntryFn(virtAddr)
	return nil
}

// MapTemporary establishes a throwaway RW mapping of frame at a fixed
// scratch virtual address. Like Map, it returns ErrAlreadyMapped if the
// scratch address is still mapped, so every caller Unmaps it when done.
// The core uses this to edit an inactive page table's frame before it is
// switched in (spec.md §4.G's "temporary foreign-table edits").
func MapTemporary(frame pmm.Number, allocFn FrameAllocatorFn) (Page, *kernel.Error) {
	page := PageFromAddress(addr.Virtual(tempMappingAddr))
	if err := Map(page, frame, FlagRW, allocFn); err != nil {
		return 0, err
	}
	return page, nil
}

// Unmap removes a mapping previously installed by Map or MapTemporary,
// returning the frame it used to point to and invalidating the page's TLB
// entry. It returns ErrInvalidMapping if any table in the chain is absent,
// and errNoHugePageSupport if the chain passes through a huge-page entry.
func Unmap(page Page) (pmm.Number, *kernel.Error) {
	virtAddr := uintptr(page.Address())

	table := RootTable()
	for table.HasNext() {
		idx := entryIndex(virtAddr, table.Level())
		e := table.Entry(idx)
		if !e.HasFlags(FlagPresent) {
			return 0, ErrInvalidMapping
		}
		if e.HasFlags(FlagHugePage) {
			return 0, errNoHugePageSupport
		}
		table = Table{addr: table.childAddr(idx), level: table.Level() + 1}
	}

	pte := table.Entry(entryIndex(virtAddr, table.Level()))
	frame, present := pte.FrameIfPresent()
	if !present {
		return 0, ErrInvalidMapping
	}

	pte.ClearFlags(FlagPresent)
	flushTLBEntryFn(virtAddr)
	return frame, nil
}

// UnmapAndFree removes page's mapping, as Unmap does, and also releases the
// frame it used to point to back to the caller's allocator via freeFn. This
// is the spec.md §4.G "unmap(page, allocator)" contract: callers that tear
// down a mapping and never intend to reuse its frame (unlike
// MapTemporary's callers, which keep the frame alive for other use) should
// call this instead of the bare Unmap.
func UnmapAndFree(page Page, freeFn FrameFreeFn) (pmm.Number, *kernel.Error) {
	frame, err := Unmap(page)
	if err != nil {
		return 0, err
	}
	freeFn(frame)
	return frame, nil
}
