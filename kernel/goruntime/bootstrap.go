// Package goruntime bootstraps the parts of the Go runtime that assume a
// working memory allocator (maps, interfaces, the hash algorithm table)
// before handing control back to ordinary kernel code. It re-points the
// runtime's sysReserve/sysMap/sysAlloc hooks at vmm/pmm so that make,
// append, and closures keep working anywhere in the kernel once Init
// returns.
package goruntime

import (
	"unsafe"

	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
	"github.com/nyxkernel/core/kernel/mem/vmm"
)

var (
	mapFn                = vmm.Map
	earlyReserveRegionFn = vmm.EarlyReserveRegion

	// frameAllocFn is registered via SetFrameAllocator before Init runs;
	// sysAlloc uses it to back every page it establishes with its own
	// physical frame (sysMap, by contrast, always points at the shared
	// copy-on-write zero frame).
	frameAllocFn func() (pmm.Number, *kernel.Error)

	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	// prngSeed seeds the pseudo-random number generator getRandomData
	// substitutes for /dev/random, which does not exist pre-filesystem.
	prngSeed = 0xdeadc0de

	errFrameAllocatorNotSet = &kernel.Error{Module: "goruntime", Message: "SetFrameAllocator must be called before Init"}
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// SetFrameAllocator registers the physical frame allocator sysAlloc uses to
// back freshly established virtual mappings. It must be called before Init.
func SetFrameAllocator(allocFn func() (pmm.Number, *kernel.Error)) {
	frameAllocFn = allocFn
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	regionSize := (mem.Size(size) + mem.PageSize - 1) &^ (mem.PageSize - 1)
	regionStartAddr, err := earlyReserveRegionFn(regionSize)
	if err != nil {
		panic(err)
	}

	*reserved = true
	return unsafe.Pointer(regionStartAddr)
}

// sysMap establishes a copy-on-write mapping (backed by vmm's shared zero
// frame) for a region previously reserved via sysReserve.
//
// This function replaces runtime.sysMap and is required for initializing the
// Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	regionStartAddr := (uintptr(virtAddr) + uintptr(mem.PageSize-1)) &^ uintptr(mem.PageSize-1)
	regionSize := (mem.Size(size) + mem.PageSize - 1) &^ (mem.PageSize - 1)
	pageCount := regionSize >> mem.PageShift

	mapFlags := vmm.FlagNoExecute | vmm.FlagCopyOnWrite
	for page := vmm.PageFromAddress(addr.Virtual(regionStartAddr)); pageCount > 0; pageCount, page = pageCount-1, page+1 {
		if err := mapFn(page, vmm.ReservedZeroedFrame, mapFlags, frameAllocFn); err != nil {
			return unsafe.Pointer(uintptr(0))
		}
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(regionStartAddr)
}

// sysAlloc reserves enough physical frames to satisfy the allocation request
// and establishes a contiguous virtual mapping for them, returning a pointer
// to the region's start.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := (mem.Size(size) + mem.PageSize - 1) &^ (mem.PageSize - 1)
	regionStartAddr, err := earlyReserveRegionFn(regionSize)
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	mapFlags := vmm.FlagRW | vmm.FlagNoExecute
	pageCount := regionSize >> mem.PageShift
	for page := vmm.PageFromAddress(addr.Virtual(regionStartAddr)); pageCount > 0; pageCount, page = pageCount-1, page+1 {
		frame, err := frameAllocFn()
		if err != nil {
			return unsafe.Pointer(uintptr(0))
		}

		if err = mapFn(page, frame, mapFlags, frameAllocFn); err != nil {
			return unsafe.Pointer(uintptr(0))
		}
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(regionStartAddr)
}

// getRandomData populates r with pseudo-random bytes. The runtime normally
// reads /dev/random for this; pre-filesystem, a simple LCG stands in.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables the Go runtime features that depend on a working allocator:
// heap allocation (new, make), map primitives, and interfaces. Call
// SetFrameAllocator first.
func Init() *kernel.Error {
	if frameAllocFn == nil {
		return errFrameAllocatorNotSet
	}

	mallocInitFn()
	algInitFn()
	modulesInitFn()
	typeLinksInitFn()
	itabsInitFn()

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file before their linkname redirects are wired up.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
		buf      [1]byte
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(buf[:])
}
