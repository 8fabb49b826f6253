package vmm

import (
	"testing"
	"unsafe"

	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/driver/video/console"
	"github.com/nyxkernel/core/kernel/hal"
	"github.com/nyxkernel/core/kernel/irq"
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

func withMockedFaultHooks(t *testing.T) (panics *[]*kernel.Error, cr2 *uintptr) {
	t.Helper()

	savedPanic, savedCR2, savedHandle := panicFn, readCR2Fn, handleExceptionWithCodeFn
	t.Cleanup(func() {
		panicFn, readCR2Fn, handleExceptionWithCodeFn = savedPanic, savedCR2, savedHandle
	})

	var gotPanics []*kernel.Error
	panicFn = func(e interface{}) {
		err, _ := e.(*kernel.Error)
		gotPanics = append(gotPanics, err)
	}

	// The fault handlers print through early.Printf before panicking.
	mockConsoleFb := make([]byte, 160*25)
	mockConsole := &console.Ega{}
	mockConsole.Init(80, 25, uintptr(unsafe.Pointer(&mockConsoleFb[0])))
	hal.ActiveTerminal.AttachTo(mockConsole)

	var addr uintptr
	readCR2Fn = func() uint64 { return uint64(addr) }

	handleExceptionWithCodeFn = func(irq.ExceptionNum, irq.ExceptionHandlerWithCode) {}

	return &gotPanics, &addr
}

func TestPageFaultHandlerCopyOnWriteResolvesFault(t *testing.T) {
	newMapBackedPT(t)
	panics, cr2 := withMockedFaultHooks(t)

	var nextFrame pmm.Number = 200
	frameAllocator = func() (pmm.Number, *kernel.Error) {
		nextFrame++
		return nextFrame, nil
	}

	faultAddr := uintptr(0x5000)
	*cr2 = faultAddr

	shared := pmm.Number(10)
	if err := Map(PageFromAddress(addr.Virtual(faultAddr)), shared, FlagCopyOnWrite, frameAllocator); err != nil {
		t.Fatalf("unexpected error mapping the shared page: %v", err)
	}

	pageFaultHandler(2, &irq.Frame{}, &irq.Regs{})

	if len(*panics) != 0 {
		t.Fatalf("expected the copy-on-write fault to be resolved without panicking, got %v", *panics)
	}

	phys, err := Translate(addr.Virtual(faultAddr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pmm.NumberFromAddress(phys) == shared {
		t.Fatal("expected the faulting page to now point at its own private copy, not the shared frame")
	}

	table := RootTable()
	raw := faultAddr
	for table.HasNext() {
		next, ok := table.NextLevel(entryIndex(raw, table.Level()))
		if !ok {
			t.Fatal("expected the leaf table to still exist")
		}
		table = next
	}
	pte := table.Entry(entryIndex(raw, table.Level()))
	if pte.HasFlags(FlagCopyOnWrite) {
		t.Error("expected FlagCopyOnWrite to be cleared after the copy")
	}
	if !pte.HasFlags(FlagRW) {
		t.Error("expected the private copy to be writable")
	}
}

func TestPageFaultHandlerUnmappedAddressPanics(t *testing.T) {
	newMapBackedPT(t)
	panics, cr2 := withMockedFaultHooks(t)

	*cr2 = 0x9000

	pageFaultHandler(0, &irq.Frame{}, &irq.Regs{})

	if len(*panics) != 1 {
		t.Fatalf("expected exactly one panic for an unresolvable fault, got %d", len(*panics))
	}
}

func TestGeneralProtectionFaultHandlerPanics(t *testing.T) {
	newMapBackedPT(t)
	panics, _ := withMockedFaultHooks(t)

	generalProtectionFaultHandler(0, &irq.Frame{}, &irq.Regs{})

	if len(*panics) != 1 {
		t.Fatalf("expected exactly one panic, got %d", len(*panics))
	}
}

func TestReserveZeroedFrameMapsAndZeroesThenUnmaps(t *testing.T) {
	newMapBackedPT(t)

	// Only count memsets of the scratch page; MapTemporary also zeroes each
	// intermediate table it has to create.
	memsetCalls := 0
	memsetFn = func(a uintptr, _ byte, _ mem.Size) {
		if a == tempMappingAddr {
			memsetCalls++
		}
	}

	frameAllocator = incrementingAllocator(0)

	if err := reserveZeroedFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !protectReservedZeroedPage {
		t.Error("expected protectReservedZeroedPage to be set")
	}
	if memsetCalls != 1 {
		t.Fatalf("expected the zero frame to be zeroed once, got %d calls", memsetCalls)
	}
	if ReservedZeroedFrame != pmm.Number(1) {
		t.Fatalf("expected the reserved frame to be the first allocation, got %d", ReservedZeroedFrame)
	}
}

func TestInitRegistersFaultHandlers(t *testing.T) {
	newMapBackedPT(t)
	_, _ = withMockedFaultHooks(t)

	frameAllocator = incrementingAllocator(0)

	var registered []irq.ExceptionNum
	handleExceptionWithCodeFn = func(num irq.ExceptionNum, _ irq.ExceptionHandlerWithCode) {
		registered = append(registered, num)
	}

	if err := Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(registered) != 2 || registered[0] != irq.PageFaultException || registered[1] != irq.GPFException {
		t.Fatalf("expected PageFaultException and GPFException to be registered, got %v", registered)
	}
}
