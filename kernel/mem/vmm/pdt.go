package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

var (
	// activePDTFn lets tests override activePDT, which faults outside ring 0.
	activePDTFn = activePDT

	// switchPDTFn lets tests override switchPDT, which faults outside ring 0.
	switchPDTFn = switchPDT
)

// ActivePageTable is a handle to the L4 table currently installed in CR3.
// Its Map/Unmap/FindEmptyPage/AutoContinuousMap walk through the recursive
// self-mapping exactly like the package-level Map/Unmap; the type exists so
// that With can retarget it at an InactivePageTable's frame and have every
// existing walk keep working unmodified (spec.md §4.G).
type ActivePageTable struct{}

// Map installs page -> frame in the active L4 table. See package-level Map.
func (ActivePageTable) Map(page Page, frame pmm.Number, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	return Map(page, frame, flags, allocFn)
}

// Unmap removes page's mapping from the active L4 table. See package-level
// Unmap.
func (ActivePageTable) Unmap(page Page) (pmm.Number, *kernel.Error) {
	return Unmap(page)
}

// UnmapAndFree removes page's mapping from the active L4 table and releases
// its frame via freeFn. See package-level UnmapAndFree.
func (ActivePageTable) UnmapAndFree(page Page, freeFn FrameFreeFn) (pmm.Number, *kernel.Error) {
	return UnmapAndFree(page, freeFn)
}

// MapFitting maps count consecutive pages starting at virtBase to count
// consecutive frames starting at physBase, one page at a time; the single
// count makes both ranges the same size. A failure
// partway through leaves whatever pages already succeeded mapped — callers
// that need transactional semantics must Unmap them themselves.
func (a ActivePageTable) MapFitting(virtBase Page, physBase pmm.Number, count uint64, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	for i := uint64(0); i < count; i++ {
		if err := a.Map(virtBase+Page(i), physBase+pmm.Number(i), flags, allocFn); err != nil {
			return err
		}
	}
	return nil
}

// FindEmptyPage walks L4->L3->L2, creating any intermediate tables that are
// missing (descending through the first free slot at each level), then
// locates a free L1 slot and returns the Page it corresponds to without
// mapping anything there.
func (ActivePageTable) FindEmptyPage(allocFn FrameAllocatorFn) (Page, *kernel.Error) {
	table := RootTable()
	var indices [pageLevels]int

	for table.HasNext() {
		idx, err := table.FindFreeEntryIndex(1)
		if err != nil {
			return 0, err
		}
		indices[table.Level()] = idx

		next, err := table.NextLevelCreate(idx, allocFn)
		if err != nil {
			return 0, err
		}
		table = next
	}

	l1Idx, err := table.FindFreeEntryIndex(1)
	if err != nil {
		return 0, err
	}
	indices[pageLevels-1] = l1Idx

	var virtAddr uintptr
	for level := uint8(0); level < pageLevels; level++ {
		virtAddr |= uintptr(indices[level]) << pageLevelShifts[level]
	}
	return PageFromAddress(addr.Virtual(virtAddr)), nil
}

// AutoContinuousMap maps a contiguous run of 2^order frames starting at
// base to a freshly located run of 2^order contiguous L1 entries, returning
// the Page the run starts at. This is how the heap allocator (component H)
// turns one buddy allocation into addressable virtual memory.
func (a ActivePageTable) AutoContinuousMap(base pmm.Number, order mem.PageOrder, flags PageTableEntryFlag, allocFn FrameAllocatorFn) (Page, *kernel.Error) {
	count := uint64(1) << order

	startPage, err := a.FindEmptyPage(allocFn)
	if err != nil {
		return 0, err
	}

	if err := a.MapFitting(startPage, base, count, flags, allocFn); err != nil {
		return 0, err
	}
	return startPage, nil
}

// InactivePageTable is a newly constructed L4 table that is not currently
// installed in CR3. It must be entered via With before its contents can be
// examined or modified.
type InactivePageTable struct {
	frame pmm.Number
}

// NewInactivePageTable allocates a frame for a new L4 table, maps it
// temporarily, zeroes it, installs its own recursive entry 511, and returns
// the handle.
func NewInactivePageTable(allocFn FrameAllocatorFn) (InactivePageTable, *kernel.Error) {
	frame, err := allocFn()
	if err != nil {
		return InactivePageTable{}, err
	}

	page, err := MapTemporary(frame, allocFn)
	if err != nil {
		return InactivePageTable{}, err
	}
	defer Unmap(page)

	memsetFn(uintptr(page.Address()), 0, mem.PageSize)

	recursiveEntry := (*pageTableEntry)(ptePtrFn(uintptr(page.Address()) + uintptr(recursiveIndex)<<3))
	recursiveEntry.Clear()
	recursiveEntry.SetFrame(frame)
	recursiveEntry.SetFlags(FlagPresent | FlagRW)

	return InactivePageTable{frame: frame}, nil
}

// With retargets the active L4's recursive entry 511 at inactive's frame,
// invokes fn with an ActivePageTable handle so that fn's Map/Unmap calls
// reach the inactive table's entries through the usual recursive window,
// then restores the previous recursive entry. The original active table
// stays reachable throughout because its frame is only ever referenced by
// the saved copy of the entry, never unmapped.
func With(inactive InactivePageTable, fn func(ActivePageTable) *kernel.Error) *kernel.Error {
	recursiveEntryAddr := pdtVirtualAddr + (uintptr(recursiveIndex) << 3)
	recursiveEntry := (*pageTableEntry)(ptePtrFn(recursiveEntryAddr))

	savedFrame := recursiveEntry.Frame()
	recursiveEntry.SetFrame(inactive.frame)
	// Rewriting entry 511 of the active L4 changes what every other
	// recursively-addressed table virtual address resolves to, not just
	// pdtVirtualAddr itself; a single-page INVLPG would leave those other
	// mappings stale in the TLB. Reloading CR3 with the still-active
	// table's own physical address flushes the whole TLB without
	// actually switching tables.
	switchPDTFn(uintptr(activePDTFn()))

	err := fn(ActivePageTable{})

	recursiveEntry.SetFrame(savedFrame)
	switchPDTFn(uintptr(activePDTFn()))

	return err
}

// Switch installs newInactive as the active L4 table (writing CR3) and
// returns a handle to the table that was active just before the call.
func Switch(newInactive InactivePageTable) InactivePageTable {
	oldFrame := pmm.NumberFromAddress(addr.Physical(activePDTFn()))
	switchPDTFn(uintptr(newInactive.frame.Address()))
	return InactivePageTable{frame: oldFrame}
}
