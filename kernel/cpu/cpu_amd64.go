package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the contents of the CR2 register, which the CPU sets to
// the faulting address on a page fault.
func ReadCR2() uint64

// Outb writes a single byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a single byte from the given I/O port.
func Inb(port uint16) uint8

// LoadIDT loads the interrupt descriptor table register (IDTR) from the
// 10-byte pseudo-descriptor (2-byte limit, 8-byte base) at descriptorAddr.
func LoadIDT(descriptorAddr uintptr)
