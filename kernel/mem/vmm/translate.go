package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem/addr"
)

// Translate walks the active L4 table for virtAddr and returns the physical
// address it maps to, or ErrInvalidMapping if any level of the chain is
// absent.
func Translate(virtAddr addr.Virtual) (addr.Physical, *kernel.Error) {
	raw := uintptr(virtAddr)

	table := RootTable()
	for table.HasNext() {
		next, ok := table.NextLevel(entryIndex(raw, table.Level()))
		if !ok {
			return 0, ErrInvalidMapping
		}
		table = next
	}

	frame, present := table.Entry(entryIndex(raw, table.Level())).FrameIfPresent()
	if !present {
		return 0, ErrInvalidMapping
	}

	offset := raw & ((1 << pageLevelShifts[pageLevels-1]) - 1)
	return addr.Physical(uintptr(frame.Address()) | offset), nil
}
