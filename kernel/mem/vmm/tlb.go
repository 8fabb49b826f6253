package vmm

// flushTLBEntry invalidates the single TLB entry for virtAddr (INVLPG).
func flushTLBEntry(virtAddr uintptr)

// switchPDT writes the physical address of a new top-level page table into
// CR3 and flushes the TLB. This is the architectural write spec.md's
// ActivePageTable.switch performs.
func switchPDT(pdtPhysAddr uintptr)

// activePDT reads CR3, returning the physical address of the currently
// active top-level page table.
func activePDT() uintptr
