package kmain

import (
	"unsafe"

	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/cpu"
	"github.com/nyxkernel/core/kernel/goruntime"
	"github.com/nyxkernel/core/kernel/hal"
	"github.com/nyxkernel/core/kernel/hal/multiboot"
	"github.com/nyxkernel/core/kernel/irq"
	"github.com/nyxkernel/core/kernel/irq/pic"
	"github.com/nyxkernel/core/kernel/irq/pit"
	"github.com/nyxkernel/core/kernel/kfmt/early"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/earlyalloc"
	"github.com/nyxkernel/core/kernel/mem/heap"
	"github.com/nyxkernel/core/kernel/mem/pmm"
	"github.com/nyxkernel/core/kernel/mem/pmm/buddy"
	"github.com/nyxkernel/core/kernel/mem/region"
	"github.com/nyxkernel/core/kernel/mem/vmm"
)

// tickRateHz is the frequency pit.Init programs the PIT's channel 0 for;
// sched.Tick runs once per interrupt at this rate.
const tickRateHz = 100

// heapOrder sizes the kernel heap component H carves out of the buddy
// allocator: 2^heapOrder contiguous frames, mapped as one run.
const heapOrder = mem.PageOrder(4)

var (
	errKmainReturned  = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoUsableMemory = &kernel.Error{Module: "kmain", Message: "firmware memory map reports no region large enough for the frame descriptor table"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and a minimal g0 struct that allows Go code to
// run on the 4K bootstrap stack.
//
// The rt0 code passes the address of the multiboot info payload the
// bootloader provided, along with the physical addresses of the kernel
// image. Kmain then runs the full bring-up pipeline: locate a usable region
// of physical memory, seed the early bump allocator from it, carve the
// frame descriptor table out of that, hand the table to the buddy
// allocator, build a fresh kernel page table backed by the buddy allocator
// and switch to it, bind the kernel heap to the new table, then bring up
// interrupt dispatch, the PIC, and the PIT tick the scheduler piggybacks
// on.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	var memTop uintptr
	region.Iter(func(r region.Region) bool {
		if end := r.End(); end > memTop {
			memTop = end
		}
		return true
	})
	frameCount := uint64(memTop) >> mem.PageShift

	var zeroDescriptor pmm.Descriptor
	descriptorBytes := uintptr(unsafe.Sizeof(zeroDescriptor)) * uintptr(frameCount)

	freeRegion, ok := region.FirstFree(descriptorBytes, kernelEnd)
	if !ok {
		kernel.Panic(errNoUsableMemory)
	}

	early.Printf("[kmain] system memory map reports 0x%x bytes top; kernel image at 0x%x-0x%x\n",
		uint64(memTop), uint64(kernelStart), uint64(kernelEnd))
	early.Printf("[kmain] frame descriptor table (%d frames) carved from 0x%x-0x%x\n",
		frameCount, uint64(freeRegion.Base), uint64(freeRegion.End()))

	earlyAlloc := earlyalloc.New(addr.Physical(freeRegion.Base), addr.Physical(freeRegion.End()))
	table, earlyAlloc := pmm.NewTable(earlyAlloc, pmm.Number(0), frameCount)

	// Every frame starts out Used (see pmm.NewTable); only the frames a
	// Free firmware region actually covers are released, and even then
	// never the kernel image itself or the slice of the early region the
	// descriptor table was just carved from — both stay reserved for the
	// kernel's lifetime.
	kernelStartFrame := pmm.NumberFromAddress(addr.Physical(kernelStart))
	kernelEndFrame := pmm.NumberFromAddress(addr.Physical(addr.AlignUp(kernelEnd, uintptr(mem.PageSize)))) - 1

	earlyRegionStartFrame := pmm.NumberFromAddress(addr.Physical(freeRegion.Base))
	earlyConsumedEnd := addr.AlignUp(uintptr(earlyAlloc.IntoAddrBegin()), uintptr(mem.PageSize))
	earlyRegionEndFrame := pmm.NumberFromAddress(addr.Physical(earlyConsumedEnd)) - 1

	reservedWindows := [2][2]pmm.Number{
		{kernelStartFrame, kernelEndFrame},
		{earlyRegionStartFrame, earlyRegionEndFrame},
	}

	region.Iter(func(r region.Region) bool {
		if r.State != region.Free {
			return true
		}
		start := pmm.NumberFromAddress(addr.Physical(addr.AlignUp(r.Base, uintptr(mem.PageSize))))
		end := pmm.NumberFromAddress(addr.Physical(r.End()))
		for n := start; n < end; n++ {
			if !table.Contains(n) || inAnyWindow(n, reservedWindows) {
				continue
			}
			table.MarkFree(n)
		}
		return true
	})

	buddyAlloc := buddy.New(table)
	allocFrame := func() (pmm.Number, *kernel.Error) { return buddyAlloc.Allocate(0) }

	inactive, err := vmm.NewInactivePageTable(allocFrame)
	if err != nil {
		kernel.Panic(err)
	}

	// Identity-map every frame below memTop into the new table before
	// switching to it, so that the VGA buffer, the kernel image, and
	// every frame the buddy allocator might hand out next all remain
	// reachable the instant CR3 changes.
	err = vmm.With(inactive, func(active vmm.ActivePageTable) *kernel.Error {
		return active.MapFitting(vmm.PageFromAddress(addr.Virtual(0)), pmm.Number(0), frameCount, vmm.FlagRW, allocFrame)
	})
	if err != nil {
		kernel.Panic(err)
	}

	vmm.Switch(inactive)
	vmm.SetFrameAllocator(allocFrame)

	if err = vmm.Init(); err != nil {
		kernel.Panic(err)
	}

	allocHeapBlock := func() (pmm.Number, *kernel.Error) { return buddyAlloc.Allocate(heapOrder) }
	if err = heap.Init(heapOrder, allocHeapBlock); err != nil {
		kernel.Panic(err)
	}

	irq.Init()
	pic.Init()
	if err = pit.Init(tickRateHz); err != nil {
		kernel.Panic(err)
	}

	// Every IRQ line except the timer is still masked by pic.Init; it is
	// now safe to let interrupts through globally so sched.Tick actually
	// runs.
	cpu.EnableInterrupts()

	goruntime.SetFrameAllocator(allocFrame)
	if err = goruntime.Init(); err != nil {
		kernel.Panic(err)
	}

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

func inAnyWindow(n pmm.Number, windows [2][2]pmm.Number) bool {
	for _, w := range windows {
		if n >= w[0] && n <= w[1] {
			return true
		}
	}
	return false
}
