package pmm

import (
	"unsafe"

	"github.com/nyxkernel/core/kernel/mem/earlyalloc"
)

// Table is the array of per-frame Descriptors carved out of the early
// allocator during bring-up (spec.md's dataflow: "D array carved from C").
// Index i describes the frame with Number Base+Number(i); the buddy
// allocator (kernel/mem/pmm/buddy) owns this array for the rest of the
// kernel's lifetime.
type Table struct {
	Base   Number
	Frames []Descriptor
}

// NewTable allocates a Descriptor for every frame in [base, base+count)
// using the supplied early allocator, initializing each one to Used (bring-up
// then releases the ones that are actually available with MarkFree, before
// handing the table to the buddy allocator).
func NewTable(early *earlyalloc.Allocator, base Number, count uint64) (*Table, *earlyalloc.Allocator) {
	first, err := earlyalloc.Allocate[Descriptor](early, int(count))
	if err != nil {
		panic(err)
	}

	frames := unsafe.Slice(first, count)
	for i := range frames {
		frames[i] = Descriptor{number: base + Number(i), state: Used}
	}

	return &Table{Base: base, Frames: frames}, early
}

// NewBareTable builds a Table directly from the Go heap rather than the
// early allocator. Production bring-up always goes through NewTable (the
// Go runtime's allocator is not available yet); NewBareTable exists for
// unit tests, which run hosted and can rely on ordinary Go allocation.
func NewBareTable(base Number, count uint64) *Table {
	frames := make([]Descriptor, count)
	for i := range frames {
		frames[i] = Descriptor{number: base + Number(i), state: Used}
	}
	return &Table{Base: base, Frames: frames}
}

// MarkFree flips the descriptor for frame n to the Free state. Bring-up
// uses this after NewTable to release the frames that region/earlyalloc
// determined are actually available (everything else — kernel image, the
// early allocator's own carve-outs — stays Used forever).
func (t *Table) MarkFree(n Number) {
	if d := t.Descriptor(n); d != nil {
		d.SetState(Free)
	}
}

// Descriptor returns the descriptor for the given frame number, or nil if
// the frame falls outside the table's managed range.
func (t *Table) Descriptor(n Number) *Descriptor {
	if n < t.Base {
		return nil
	}
	idx := uint64(n - t.Base)
	if idx >= uint64(len(t.Frames)) {
		return nil
	}
	return &t.Frames[idx]
}

// Contains reports whether n falls inside this table's managed range.
func (t *Table) Contains(n Number) bool {
	return t.Descriptor(n) != nil
}

// Count returns the number of frames this table manages.
func (t *Table) Count() uint64 {
	return uint64(len(t.Frames))
}
