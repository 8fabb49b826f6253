package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

var (
	// ErrInvalidMapping is returned when a virtual address does not
	// resolve to a present page table entry.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrAlreadyMapped is returned by Map when the target L1 entry is
	// already present.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}

	// ErrNoPageTable is returned when an intermediate table is absent and
	// no allocator was supplied to create it.
	ErrNoPageTable = &kernel.Error{Module: "vmm", Message: "intermediate page table is not present"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errNoFreeEntries     = &kernel.Error{Module: "vmm", Message: "no run of free entries of the requested length"}
)

// pageTableEntry is a single 64-bit page table slot: bits 0-11 are flags,
// bits 12-51 are the physical frame address, bit 63 is FlagNoExecute.
type pageTableEntry uintptr

// HasFlags reports whether every bit in flags is set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag reports whether at least one bit in flags is set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags ORs flags into the entry, leaving the frame address untouched.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears flags from the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Clear resets the entry to all zero (not present, no frame, no flags).
func (pte *pageTableEntry) Clear() {
	*pte = 0
}

// Frame returns the physical frame this entry points to, regardless of
// whether FlagPresent is set.
func (pte pageTableEntry) Frame() pmm.Number {
	return pmm.NumberFromAddress(addr.Physical(uintptr(pte) & ptePhysPageMask))
}

// FrameIfPresent returns the frame this entry points to and true, or
// (0, false) if the entry is not present. This is the Option<Physical>
// spec.md §4.F's get_frame_addr describes.
func (pte pageTableEntry) FrameIfPresent() (pmm.Number, bool) {
	if !pte.HasFlags(FlagPresent) {
		return 0, false
	}
	return pte.Frame(), true
}

// SetFrame installs frame's address into the entry (OR'd with whatever
// flags are already set) and marks the entry present.
func (pte *pageTableEntry) SetFrame(frame pmm.Number) {
	frameAddr := uintptr(frame.Address())
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | frameAddr)
	pte.SetFlags(FlagPresent)
}
