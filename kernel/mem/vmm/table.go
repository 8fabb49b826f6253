package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
)

// Table names one level of the page table hierarchy by the virtual address
// its 512 entries live at, reached through the recursive self-mapping.
// spec.md §4.F asks for a typed hierarchy (L4..L1 tag types plus a HasNext
// capability gating which levels may create a child); gopheros instead
// walks straight through every level with a single untyped recursive
// function (walk, in walk.go). This type keeps walk's arithmetic — shifting
// an entry's address left by a level's index-bit-width reaches the next
// table down — but exposes it level-by-level the way spec.md's
// next_level_addr/next_level_create_mut/find_free_entry_index do, for
// callers (FindEmptyPage, AutoContinuousMap) that need to stop partway
// through the hierarchy instead of walking all the way to an L1 leaf.
type Table struct {
	addr  uintptr
	level uint8
}

// RootTable returns the Table handle for the currently active L4.
func RootTable() Table {
	return Table{addr: pdtVirtualAddr, level: 0}
}

// Level returns this table's position in the hierarchy: 0 for L4, 3 for L1.
func (t Table) Level() uint8 { return t.level }

// HasNext reports whether this level has a child level (false only for L1,
// spec.md's "HasNext capability").
func (t Table) HasNext() bool {
	return t.level < pageLevels-1
}

// Entry returns a pointer to the i'th slot in this table.
func (t Table) Entry(i int) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(t.entryAddr(i)))
}

func (t Table) entryAddr(i int) uintptr {
	return t.addr + (uintptr(i) << 3)
}

func (t Table) childAddr(i int) uintptr {
	return t.entryAddr(i) << pageLevelBits[t.level]
}

// NextLevel returns the child table reached through entry i, provided this
// level HasNext, the entry is Present, and it is not a huge-page leaf.
func (t Table) NextLevel(i int) (Table, bool) {
	if !t.HasNext() {
		return Table{}, false
	}
	e := t.Entry(i)
	if !e.HasFlags(FlagPresent) || e.HasFlags(FlagHugePage) {
		return Table{}, false
	}
	return Table{addr: t.childAddr(i), level: t.level + 1}, true
}

// NextLevelCreate returns the child table reached through entry i,
// allocating and zeroing a fresh frame for it (and, if the child is itself
// an L4 table being constructed this way, setting its own recursive entry)
// if the entry is currently absent.
func (t Table) NextLevelCreate(i int, allocFn FrameAllocatorFn) (Table, *kernel.Error) {
	if !t.HasNext() {
		return Table{}, errNoHugePageSupport
	}

	e := t.Entry(i)
	if e.HasFlags(FlagHugePage) {
		return Table{}, errNoHugePageSupport
	}

	if !e.HasFlags(FlagPresent) {
		frame, err := allocFn()
		if err != nil {
			return Table{}, err
		}

		e.Clear()
		e.SetFrame(frame)
		e.SetFlags(FlagRW)

		memsetFn(nextAddrFn(t.childAddr(i)), 0, mem.PageSize)
	}

	return Table{addr: t.childAddr(i), level: t.level + 1}, nil
}

// FindFreeEntryIndex scans this table starting at index 1 (index 0 is
// reserved so that a null virtual address continues to fault rather than
// resolving to something valid) for a run of n consecutive absent entries,
// returning the index of the first one.
func (t Table) FindFreeEntryIndex(n int) (int, *kernel.Error) {
	run, start := 0, 1
	for i := 1; i < (1 << pageLevelBits[t.level]); i++ {
		if t.Entry(i).HasFlags(FlagPresent) {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run == n {
			return start, nil
		}
	}
	return 0, errNoFreeEntries
}
