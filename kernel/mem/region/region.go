// Package region adapts the firmware-provided memory map into the Region
// value spec.md's data model describes. The underlying source of truth is
// hal/multiboot, which exposes a push-style visitor
// (VisitMemRegions(func(*MemoryMapEntry) bool)); this package turns that
// into the pull-style "stream of Region" spec.md asks for, so callers (the
// early allocator, the buddy allocator bring-up) can range over regions
// without re-deriving the multiboot tag-walking logic themselves.
package region

import "github.com/nyxkernel/core/kernel/hal/multiboot"

// State classifies a Region the way the firmware reported it.
type State uint8

const (
	// Free means the region is available for the kernel to use.
	Free State = iota
	// Used means the region is occupied (e.g. ACPI reclaimable, NVS).
	Used
	// Reserved means the region must never be touched by the allocator.
	Reserved
)

// Region is an immutable description of a contiguous block of physical
// memory as reported by firmware.
type Region struct {
	Base  uintptr
	Size  uintptr
	State State
}

// End returns the address one past the last byte covered by the region.
func (r Region) End() uintptr {
	return r.Base + r.Size
}

func stateOf(t multiboot.MemoryEntryType) State {
	switch t {
	case multiboot.MemAvailable:
		return Free
	case multiboot.MemAcpiReclaimable, multiboot.MemNvs:
		return Used
	default:
		return Reserved
	}
}

// Iter calls visit once for every region the firmware reported, in the
// order the firmware provided them. It returns early if visit returns
// false. An empty memory map is legal: Iter simply never calls visit, and
// it is the caller's job (per spec.md §4.B) to turn that into
// ErrNoUsableMemory.
func Iter(visit func(Region) bool) {
	multiboot.VisitMemRegions(func(e *multiboot.MemoryMapEntry) bool {
		return visit(Region{
			Base:  uintptr(e.PhysAddress),
			Size:  uintptr(e.Length),
			State: stateOf(e.Type),
		})
	})
}

// FirstFree returns the first Free region whose size is at least minSize, or
// false if none qualifies. This is the adapter spec.md §4.B alludes to when
// it says the caller "picks the free region above kernel-end" at bring-up.
func FirstFree(minSize uintptr, after uintptr) (Region, bool) {
	var (
		found Region
		ok    bool
	)
	Iter(func(r Region) bool {
		if r.State != Free || r.Size < minSize || r.Base < after {
			return true
		}
		found, ok = r, true
		return false
	})
	return found, ok
}
