package vmm

import (
	"testing"
	"unsafe"

	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

// mapBackedPT is a second fake backing store for the vmm package's recursive
// self-mapping, keyed directly by the synthetic entry address rather than by
// call order. FindEmptyPage and With both walk the hierarchy in patterns
// map_test.go's call-counting fakeTables cannot reproduce (FindFreeEntryIndex
// probes up to 511 entries at a single level before NextLevelCreate ever
// descends) so every (table, index) pair needs a stable identity instead.
// Because childAddr's shift-and-combine arithmetic is a pure function of the
// parent address and index, the same logical slot always produces the same
// uintptr key, so a lazily populated map reproduces the recursive mapping's
// one-entry-per-address-per-level invariant without needing to know which
// level is being walked.
type mapBackedPT struct {
	entries map[uintptr]*pageTableEntry
}

func newMapBackedPT(t *testing.T) *mapBackedPT {
	t.Helper()

	pt := &mapBackedPT{entries: make(map[uintptr]*pageTableEntry)}

	origPtePtr, origNextAddr, origFlush, origMemset, origMemcopy :=
		ptePtrFn, nextAddrFn, flushTLBEntryFn, memsetFn, memcopyFn
	t.Cleanup(func() {
		ptePtrFn, nextAddrFn, flushTLBEntryFn, memsetFn, memcopyFn =
			origPtePtr, origNextAddr, origFlush, origMemset, origMemcopy
	})

	ptePtrFn = pt.ptePtr
	nextAddrFn = func(uintptr) uintptr { return 0 }
	memsetFn = func(uintptr, byte, mem.Size) {}
	memcopyFn = func(uintptr, uintptr, mem.Size) {}
	flushTLBEntryFn = func(uintptr) {}

	return pt
}

func (pt *mapBackedPT) ptePtr(entryAddr uintptr) unsafe.Pointer {
	e, ok := pt.entries[entryAddr]
	if !ok {
		e = new(pageTableEntry)
		pt.entries[entryAddr] = e
	}
	return unsafe.Pointer(e)
}

func incrementingAllocator(start pmm.Number) FrameAllocatorFn {
	next := start
	return func() (pmm.Number, *kernel.Error) {
		next++
		return next, nil
	}
}

func TestMapFittingMapsContiguousRun(t *testing.T) {
	newMapBackedPT(t)

	allocFn := incrementingAllocator(0)
	base := pmm.Number(10)

	if err := (ActivePageTable{}).MapFitting(PageFromAddress(0)+1, base, 3, FlagRW, allocFn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := uint64(0); i < 3; i++ {
		page := PageFromAddress(0) + Page(1+i)
		raw := uintptr(page.Address())
		table := RootTable()
		for table.HasNext() {
			next, ok := table.NextLevel(entryIndex(raw, table.Level()))
			if !ok {
				t.Fatalf("page %d: expected intermediate table to exist", i)
			}
			table = next
		}
		frame, present := table.Entry(entryIndex(raw, table.Level())).FrameIfPresent()
		if !present {
			t.Fatalf("page %d: expected leaf to be present", i)
		}
		if frame != base+pmm.Number(i) {
			t.Fatalf("page %d: expected frame %d, got %d", i, base+pmm.Number(i), frame)
		}
	}
}

func TestMapFittingStopsOnFirstPageAllocatorError(t *testing.T) {
	newMapBackedPT(t)

	expErr := &kernel.Error{Module: "test", Message: "out of frames"}
	calls := 0
	allocFn := func() (pmm.Number, *kernel.Error) {
		calls++
		if calls == 3 {
			return 0, expErr
		}
		return pmm.Number(calls), nil
	}

	err := (ActivePageTable{}).MapFitting(PageFromAddress(0)+1, pmm.Number(1), 5, FlagRW, allocFn)
	if err != expErr {
		t.Fatalf("expected %v, got %v", expErr, err)
	}

	page := PageFromAddress(0) + 1
	raw := uintptr(page.Address())
	table := RootTable()
	for table.HasNext() {
		next, ok := table.NextLevel(entryIndex(raw, table.Level()))
		if !ok {
			return
		}
		table = next
	}
	if _, present := table.Entry(entryIndex(raw, table.Level())).FrameIfPresent(); present {
		t.Fatal("expected the first page to remain unmapped: its own table chain never finished")
	}
}

func TestFindEmptyPageReturnsFirstFreeIndexAtEveryLevel(t *testing.T) {
	newMapBackedPT(t)

	allocFn := incrementingAllocator(0)

	page, err := (ActivePageTable{}).FindEmptyPage(allocFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := uintptr(page.Address())
	for level := uint8(0); level < pageLevels; level++ {
		if idx := entryIndex(raw, level); idx != 1 {
			t.Errorf("level %d: expected index 1 (index 0 is reserved), got %d", level, idx)
		}
	}
}

func TestFindEmptyPageSkipsOccupiedIndex(t *testing.T) {
	pt := newMapBackedPT(t)

	root := RootTable()
	occupied := (*pageTableEntry)(pt.ptePtr(root.entryAddr(1)))
	occupied.SetFlags(FlagPresent)

	allocFn := incrementingAllocator(0)
	page, err := (ActivePageTable{}).FindEmptyPage(allocFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw := uintptr(page.Address())
	if idx := entryIndex(raw, 0); idx != 2 {
		t.Errorf("expected L4 index 2 (1 is occupied), got %d", idx)
	}
	if idx := entryIndex(raw, pageLevels-1); idx != 1 {
		t.Errorf("expected L1 index 1 in the fresh subtree, got %d", idx)
	}
}

func TestFindEmptyPageNoFreeEntries(t *testing.T) {
	pt := newMapBackedPT(t)

	root := RootTable()
	for i := 1; i < entriesPerTable; i++ {
		(*pageTableEntry)(pt.ptePtr(root.entryAddr(i))).SetFlags(FlagPresent | FlagHugePage)
	}

	allocFn := incrementingAllocator(0)
	if _, err := (ActivePageTable{}).FindEmptyPage(allocFn); err != errNoFreeEntries {
		t.Fatalf("expected errNoFreeEntries, got %v", err)
	}
}

func TestAutoContinuousMapMapsOrderFrames(t *testing.T) {
	newMapBackedPT(t)

	base := pmm.Number(100)
	allocFn := incrementingAllocator(0)

	startPage, err := (ActivePageTable{}).AutoContinuousMap(base, mem.PageOrder(1), FlagRW, allocFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := uint64(0); i < 2; i++ {
		page := startPage + Page(i)
		raw := uintptr(page.Address())
		table := RootTable()
		for table.HasNext() {
			next, ok := table.NextLevel(entryIndex(raw, table.Level()))
			if !ok {
				t.Fatalf("offset %d: expected table to exist", i)
			}
			table = next
		}
		frame, present := table.Entry(entryIndex(raw, table.Level())).FrameIfPresent()
		if !present {
			t.Fatalf("offset %d: expected leaf to be present", i)
		}
		if frame != base+pmm.Number(i) {
			t.Fatalf("offset %d: expected frame %d, got %d", i, base+pmm.Number(i), frame)
		}
	}
}

func TestNewInactivePageTableZeroesAndSetsRecursiveEntry(t *testing.T) {
	pt := newMapBackedPT(t)

	// Only count memsets of the scratch page; MapTemporary also zeroes each
	// intermediate table it has to create.
	memsetCalls := 0
	memsetFn = func(a uintptr, _ byte, _ mem.Size) {
		if a == tempMappingAddr {
			memsetCalls++
		}
	}

	allocFn := incrementingAllocator(100)
	inactive, err := NewInactivePageTable(allocFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inactive.frame != pmm.Number(101) {
		t.Fatalf("expected the inactive table's own frame to be the first allocation, got %d", inactive.frame)
	}
	if memsetCalls != 1 {
		t.Fatalf("expected the freshly allocated table to be zeroed once, got %d calls", memsetCalls)
	}

	recursiveAddr := tempMappingAddr + uintptr(recursiveIndex)<<3
	recursiveEntry := (*pageTableEntry)(pt.ptePtr(recursiveAddr))
	if !recursiveEntry.HasFlags(FlagPresent | FlagRW) {
		t.Fatal("expected the new table's own recursive entry to be present and writable")
	}
	if recursiveEntry.Frame() != inactive.frame {
		t.Fatalf("expected the recursive entry to point back at frame %d, got %d", inactive.frame, recursiveEntry.Frame())
	}
}

func TestWithRetargetsRecursiveEntryAndRestores(t *testing.T) {
	pt := newMapBackedPT(t)

	recAddr := pdtVirtualAddr + uintptr(recursiveIndex)<<3
	original := (*pageTableEntry)(pt.ptePtr(recAddr))
	original.SetFrame(pmm.Number(7))
	original.SetFlags(FlagPresent | FlagRW)

	inactive := InactivePageTable{frame: pmm.Number(55)}

	savedActive, savedSwitch := activePDTFn, switchPDTFn
	defer func() { activePDTFn, switchPDTFn = savedActive, savedSwitch }()

	stillActiveAddr := uintptr(pmm.Number(3).Address())
	activePDTFn = func() uintptr { return stillActiveAddr }
	var switchedTo []uintptr
	switchPDTFn = func(cr3 uintptr) { switchedTo = append(switchedTo, cr3) }

	var sawFrame pmm.Number
	err := With(inactive, func(ActivePageTable) *kernel.Error {
		sawFrame = (*pageTableEntry)(pt.ptePtr(recAddr)).Frame()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawFrame != inactive.frame {
		t.Fatalf("expected fn to observe frame %d while entered, got %d", inactive.frame, sawFrame)
	}

	restored := (*pageTableEntry)(pt.ptePtr(recAddr))
	if restored.Frame() != pmm.Number(7) {
		t.Fatalf("expected the original recursive entry to be restored, got frame %d", restored.Frame())
	}
	if len(switchedTo) != 2 {
		t.Fatalf("expected a full CR3 reload (enter + restore) instead of a single-page flush, got %d", len(switchedTo))
	}
	for _, cr3 := range switchedTo {
		if cr3 != stillActiveAddr {
			t.Fatalf("expected the full flush to reload CR3 with the still-active table's own address, got 0x%x", cr3)
		}
	}
}

func TestWithPropagatesFnError(t *testing.T) {
	newMapBackedPT(t)

	inactive := InactivePageTable{frame: pmm.Number(1)}
	expErr := &kernel.Error{Module: "test", Message: "boom"}

	savedActive, savedSwitch := activePDTFn, switchPDTFn
	defer func() { activePDTFn, switchPDTFn = savedActive, savedSwitch }()
	activePDTFn = func() uintptr { return 0 }
	switchPDTFn = func(uintptr) {}

	err := With(inactive, func(ActivePageTable) *kernel.Error {
		return expErr
	})
	if err != expErr {
		t.Fatalf("expected %v, got %v", expErr, err)
	}
}

func TestSwitchReturnsPreviouslyActiveTable(t *testing.T) {
	newMapBackedPT(t)

	savedActive, savedSwitch := activePDTFn, switchPDTFn
	defer func() { activePDTFn, switchPDTFn = savedActive, savedSwitch }()

	oldFrame := pmm.Number(99)
	activePDTFn = func() uintptr { return uintptr(oldFrame.Address()) }

	var switchedTo uintptr
	switchPDTFn = func(cr3 uintptr) { switchedTo = cr3 }

	newTable := InactivePageTable{frame: pmm.Number(42)}
	old := Switch(newTable)

	if old.frame != oldFrame {
		t.Fatalf("expected the deposed table's frame to be %d, got %d", oldFrame, old.frame)
	}
	if switchedTo != uintptr(newTable.frame.Address()) {
		t.Fatalf("expected switchPDTFn to be called with the new frame's address")
	}
}
