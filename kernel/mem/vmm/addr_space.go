package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
)

var (
	// earlyReserveLastUsed tracks the last reserved virtual address and is
	// decreased after each reservation. It starts at tempMappingAddr, the
	// top of the address range the recursive mapping leaves free for
	// bring-up use.
	earlyReserveLastUsed = tempMappingAddr

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining virtual address space not large enough to satisfy the reservation"}
)

// EarlyReserveRegion reserves a page-aligned contiguous range of virtual
// address space (rounding size up to a page multiple) and returns its start
// address, without mapping anything there. goruntime's sysReserve calls this
// to hand the Go allocator address space it can later sysMap a real backing
// onto; it must only be used during bring-up, before concurrent callers
// exist.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) &^ (mem.PageSize - 1)

	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
