package vmm

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/cpu"
	"github.com/nyxkernel/core/kernel/irq"
	"github.com/nyxkernel/core/kernel/kfmt/early"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

var (
	// frameAllocator is registered via SetFrameAllocator and used whenever
	// the fault handlers or Init need a fresh physical frame.
	frameAllocator FrameAllocatorFn

	// ReservedZeroedFrame is a single always-zero physical frame shared by
	// every copy-on-write mapping until the first write fault against it,
	// at which point the faulting page gets its own private copy.
	ReservedZeroedFrame pmm.Number

	// protectReservedZeroedPage is set once ReservedZeroedFrame has been
	// carved out; from that point a mapping request for it must never
	// carry FlagRW.
	protectReservedZeroedPage bool

	// mocked by tests, inlined by the compiler in the kernel build.
	panicFn                   = kernel.Panic
	readCR2Fn                 = cpu.ReadCR2
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
)

// SetFrameAllocator registers the function the fault handlers and Init use
// whenever a fresh physical frame is required. Map and Unmap do not use it;
// Map takes its allocator as an argument.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

func pageFaultHandler(errorCode uint64, frame *irq.Frame, regs *irq.Regs) {
	faultAddress := addr.Virtual(uintptr(readCR2Fn()))
	faultPage := PageFromAddress(faultAddress)

	table := RootTable()
	var leafEntry *pageTableEntry
	raw := uintptr(faultAddress)
	for {
		idx := entryIndex(raw, table.Level())
		if table.Level() == pageLevels-1 {
			if table.Entry(idx).HasFlags(FlagPresent) {
				leafEntry = table.Entry(idx)
			}
			break
		}
		next, ok := table.NextLevel(idx)
		if !ok {
			break
		}
		table = next
	}

	if leafEntry != nil && !leafEntry.HasFlags(FlagRW) && leafEntry.HasFlags(FlagCopyOnWrite) {
		copyFrame, err := frameAllocator()
		if err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
			return
		}
		tmpPage, err := MapTemporary(copyFrame, frameAllocator)
		if err != nil {
			nonRecoverablePageFault(faultAddress, errorCode, frame, regs, err)
			return
		}

		memcopyFn(uintptr(faultPage.Address()), uintptr(tmpPage.Address()), mem.PageSize)
		Unmap(tmpPage)

		leafEntry.ClearFlags(FlagCopyOnWrite)
		leafEntry.SetFrame(copyFrame)
		leafEntry.SetFlags(FlagPresent | FlagRW)
		flushTLBEntryFn(uintptr(faultPage.Address()))
		return
	}

	nonRecoverablePageFault(faultAddress, errorCode, frame, regs, nil)
}

func nonRecoverablePageFault(faultAddress addr.Virtual, errorCode uint64, frame *irq.Frame, regs *irq.Regs, err *kernel.Error) {
	early.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", uintptr(faultAddress))
	switch errorCode {
	case 0:
		early.Printf("read from non-present page")
	case 1:
		early.Printf("page protection violation (read)")
	case 2:
		early.Printf("write to non-present page")
	case 3:
		early.Printf("page protection violation (write)")
	case 4:
		early.Printf("page-fault in user-mode")
	case 8:
		early.Printf("page table has reserved bit set")
	case 16:
		early.Printf("instruction fetch")
	default:
		early.Printf("unknown")
	}

	early.Printf("\n\nRegisters:\n")
	regs.Print()
	frame.Print()

	panicFn(err)
}

func generalProtectionFaultHandler(_ uint64, frame *irq.Frame, regs *irq.Regs) {
	early.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	early.Printf("Registers:\n")
	regs.Print()
	frame.Print()

	panicFn(nil)
}

// reserveZeroedFrame carves out the shared zero frame used for lazy,
// copy-on-write-backed allocations.
func reserveZeroedFrame() *kernel.Error {
	frame, err := frameAllocator()
	if err != nil {
		return err
	}
	ReservedZeroedFrame = frame

	tempPage, err := MapTemporary(frame, frameAllocator)
	if err != nil {
		return err
	}
	memsetFn(uintptr(tempPage.Address()), 0, mem.PageSize)
	Unmap(tempPage)

	protectReservedZeroedPage = true
	return nil
}

// Init reserves the shared zero frame and installs the page-fault and
// general-protection-fault handlers.
func Init() *kernel.Error {
	if err := reserveZeroedFrame(); err != nil {
		return err
	}

	handleExceptionWithCodeFn(irq.PageFaultException, pageFaultHandler)
	handleExceptionWithCodeFn(irq.GPFException, generalProtectionFaultHandler)
	return nil
}
