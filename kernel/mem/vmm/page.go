package vmm

import (
	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
)

// Page identifies a virtual memory page index; physical-address's virtual
// counterpart. Unlike pmm.Descriptor, a Page carries no metadata of its own
// — it is a value object, recreated on demand from whatever virtual
// address the caller is working with.
type Page uintptr

// Address returns the virtual address this page starts at.
func (p Page) Address() addr.Virtual {
	return addr.Virtual(uintptr(p) << mem.PageShift)
}

// PageFromAddress returns the Page containing virtAddr, rounding down to
// the enclosing page if virtAddr is not page-aligned.
func PageFromAddress(virtAddr addr.Virtual) Page {
	return Page((uintptr(virtAddr) &^ (uintptr(mem.PageSize) - 1)) >> mem.PageShift)
}
