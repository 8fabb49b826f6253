// Package pmm holds the physical-frame bookkeeping that every allocator in
// the core builds on: frame numbers, per-frame metadata, and the descriptor
// table that gives every manageable frame a home for its entire lifetime.
//
// gopheros' pmm.Frame conflates "frame number" and "the only state a frame
// carries" into a single uint64 (PageOrder lives in its top 8 bits). That
// works for a bitmap allocator, which tracks free/used out-of-band in a
// bitmap. A buddy allocator (kernel/mem/pmm/buddy) needs an intrusive free
// list (REDESIGN FLAGS in spec.md: "Frames must be movable only by the
// allocator; embed the list link in Frame itself"), so this file splits the
// old Frame in two: Number (the bare index, kept close to gopheros'
// original arithmetic) and Descriptor (the per-frame metadata record, one
// per manageable frame, built once at bring-up and never reallocated).
package pmm

import (
	"math"

	"github.com/nyxkernel/core/kernel/mem"
	"github.com/nyxkernel/core/kernel/mem/addr"
)

// Number identifies a physical memory frame. physical-address = Number *
// mem.PageSize.
type Number uint64

// InvalidNumber is returned by allocators when they fail to reserve a
// frame.
const InvalidNumber = Number(math.MaxUint64)

// IsValid returns true if this is not the sentinel InvalidNumber.
func (n Number) IsValid() bool {
	return n != InvalidNumber
}

// Address returns the physical address of this frame.
func (n Number) Address() addr.Physical {
	return addr.Physical(uintptr(n) << mem.PageShift)
}

// NumberFromAddress returns the frame number containing the given physical
// address, rounding down to the enclosing frame if the address is not
// frame-aligned.
func NumberFromAddress(p addr.Physical) Number {
	return Number(uintptr(p) >> mem.PageShift)
}

// State describes whether a frame is available for allocation.
type State uint8

const (
	// Free frames sit in exactly one buddy free list.
	Free State = iota
	// Used frames are owned by some caller and sit in no free list.
	Used
)

// Descriptor is the per-frame metadata record spec.md §3 calls Frame: a
// fixed-size unit identified by its Number, tagged with the buddy order of
// the block it is currently part of, its Free/Used state, and an intrusive
// link that embeds it in at most one free list at a time.
//
// One Descriptor is constructed per manageable frame during bring-up (see
// Table) and lives for the kernel's lifetime; only state/order/link ever
// change.
type Descriptor struct {
	number Number
	order  mem.PageOrder
	state  State
	link   *Descriptor
}

// Number returns the frame number this descriptor describes.
func (d *Descriptor) Number() Number { return d.number }

// Order returns the buddy order of the block this frame currently belongs
// to. It is only meaningful while the frame is Free or while it is the
// "representative" frame of a Used allocation.
func (d *Descriptor) Order() mem.PageOrder { return d.order }

// SetOrder updates the buddy order recorded for this frame.
func (d *Descriptor) SetOrder(o mem.PageOrder) { d.order = o }

// State returns whether the frame is Free or Used.
func (d *Descriptor) State() State { return d.state }

// SetState updates the frame's Free/Used state.
func (d *Descriptor) SetState(s State) { d.state = s }

// Link returns the next descriptor in this frame's free list, or nil if it
// is the tail (or not linked at all).
func (d *Descriptor) Link() *Descriptor { return d.link }

// SetLink inserts this descriptor ahead of next in a free list. The caller
// must ensure d is currently unlinked (see ResetLink) before insertion;
// SetLink panics if d is still linked rather than silently dropping whatever
// it used to point to.
func (d *Descriptor) SetLink(next *Descriptor) {
	if d.link != nil {
		panic("pmm: SetLink called on a descriptor that is still linked")
	}
	d.link = next
}

// ResetLink detaches the descriptor from any list it may be part of. Buddy
// always calls this before reusing a descriptor so that stale links never
// leak between free lists.
func (d *Descriptor) ResetLink() {
	d.link = nil
}
