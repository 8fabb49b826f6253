//go:build amd64

package irq

import (
	"unsafe"

	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/cpu"
	"github.com/nyxkernel/core/kernel/kfmt/early"
)

const (
	idtSize = 256

	// kernelCodeSegment is the selector rt0's GDT setup (run before Kmain)
	// installs for ring-0 code.
	kernelCodeSegment = 0x08

	// gateTypeTrap64 marks a present, DPL-0, 64-bit trap gate: unlike an
	// interrupt gate it leaves IF untouched on entry.
	gateTypeTrap64 = 0x8f
)

// gateEntry is a single 16-byte x86_64 IDT gate descriptor.
type gateEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// idtDescriptor is the 10-byte pseudo-descriptor (limit, base) the LIDT
// instruction loads from.
type idtDescriptor struct {
	limit uint16
	base  uint64
}

var (
	idt   [idtSize]gateEntry
	idtPD idtDescriptor

	// panicFn is mocked by tests; inlined by the compiler in the kernel build.
	panicFn = kernel.Panic
)

// interruptGateEntries returns the entrypoint address of the generated
// low-level trampoline for each of the idtSize vectors. Each trampoline
// saves Regs, reads the CPU-pushed Frame (and error code, where
// vectorPushesErrorCode holds), and calls dispatch with the vector number.
func interruptGateEntries() [idtSize]uintptr

// installIDT builds every gate from the trampoline addresses
// interruptGateEntries returns, all present from the start (so that an
// unexpected vector still reaches the default fault-printing handler rather
// than triple-faulting), and loads the table via LIDT.
func installIDT() {
	entries := interruptGateEntries()
	for vec := 0; vec < idtSize; vec++ {
		idt[vec] = gateEntry{
			offsetLow:  uint16(entries[vec]),
			selector:   kernelCodeSegment,
			ist:        0,
			typeAttr:   gateTypeTrap64,
			offsetMid:  uint16(entries[vec] >> 16),
			offsetHigh: uint32(entries[vec] >> 32),
		}
	}

	idtPD.limit = uint16(unsafe.Sizeof(idt) - 1)
	idtPD.base = uint64(uintptr(unsafe.Pointer(&idt[0])))
	cpu.LoadIDT(uintptr(unsafe.Pointer(&idtPD)))
}

// dispatch is invoked by each vector's trampoline (via the Go calling
// convention, after it has reconstructed Regs and Frame on the stack) to
// route the interrupt to whichever handler is registered for vec.
func dispatch(vec uint8, errorCode uint64, frame *Frame, regs *Regs) {
	switch {
	case vectorPushesErrorCode(vec):
		if h := exceptionHandlersWithCode[vec]; h != nil {
			h(errorCode, frame, regs)
			return
		}
	case vec < 32:
		if h := exceptionHandlers[vec]; h != nil {
			h(frame, regs)
			return
		}
	default:
		if h := irqHandlers[vec]; h != nil {
			h(frame, regs)
			return
		}
	}

	defaultHandler(vec, errorCode, frame, regs)
}

// defaultHandler is installed (conceptually; in practice dispatch falls
// back to it whenever no slot-specific handler has been registered) in
// every IDT slot at Init time, printing the fault frame before halting.
func defaultHandler(vec uint8, errorCode uint64, frame *Frame, regs *Regs) {
	early.Printf("\nunhandled interrupt %d (error code %d)\n", vec, errorCode)
	regs.Print()
	frame.Print()
	panicFn(&kernel.Error{Module: "irq", Message: "unhandled interrupt"})
}

// Init builds and loads the IDT with every gate present and backed by
// defaultHandler; callers then use HandleException, HandleExceptionWithCode
// and HandleIRQ to override individual vectors.
func Init() {
	installIDT()
}
