//go:build amd64

package vmm

import "math"

const (
	// pageLevels is the number of page table levels the amd64 MMU walks:
	// L4 -> L3 -> L2 -> L1.
	pageLevels = 4

	// ptePhysPageMask extracts the physical frame address (bits 12-51)
	// from a raw page table entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// recursiveIndex is the L4 slot (511, the last one) every active L4
	// table points back at itself through.
	recursiveIndex = 511

	// tempMappingAddr is the fixed virtual address used for temporary
	// single-page mappings (e.g. editing an inactive PDT's frame before it
	// becomes active). It walks the recursive window through indices
	// 510, 511, 511, 511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)
)

var (
	// pdtVirtualAddr is the virtual address that names the active L4 table
	// itself: setting every page-level index to the recursive index keeps
	// the MMU following entry 511 at every level, landing on the L4 frame.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of virtual-address bits each level
	// consumes (9 bits -> 512 entries per table, at every level).
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the shift needed to extract each level's index
	// from a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

// PageTableEntryFlag is a bit flag that can be applied to a page table
// entry.
type PageTableEntryFlag uintptr

const (
	// FlagPresent is set when the page is present in memory.
	FlagPresent PageTableEntryFlag = 1 << iota
	// FlagRW is set if the page is writable.
	FlagRW
	// FlagUser is set if user-mode code may access the page.
	FlagUser
	// FlagWriteThrough selects write-through caching for the page.
	FlagWriteThrough
	// FlagCacheDisable disables caching for the page entirely.
	FlagCacheDisable
	// FlagAccessed is set by the CPU the first time the page is read.
	FlagAccessed
	// FlagDirty is set by the CPU the first time the page is written.
	FlagDirty
	// FlagHugePage marks a 2MB (L2) or 1GB (L3) mapping instead of the
	// usual 4KB leaf.
	FlagHugePage
	// FlagGlobal prevents the TLB from evicting this entry on a CR3
	// reload.
	FlagGlobal

	// FlagCopyOnWrite marks a read-only page whose writable copy is made
	// lazily on the first write fault. Mutually exclusive with FlagRW.
	FlagCopyOnWrite PageTableEntryFlag = 1 << 9

	// FlagNoExecute marks the page as non-executable (bit 63).
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
