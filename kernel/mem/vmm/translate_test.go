package vmm

import (
	"testing"

	"github.com/nyxkernel/core/kernel/mem/addr"
	"github.com/nyxkernel/core/kernel/mem/pmm"
)

func TestTranslateResolvesMappedAddress(t *testing.T) {
	newMapBackedPT(t)

	frame := pmm.Number(77)
	allocFn := incrementingAllocator(0)

	virt := addr.Virtual(0x2000)
	if err := Map(PageFromAddress(virt), frame, FlagRW, allocFn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	phys, err := Translate(virt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp := addr.Physical(uintptr(frame.Address()) + 0x123)
	got, err := Translate(addr.Virtual(0x2000 + 0x123))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != exp {
		t.Fatalf("expected offset within the page to be preserved: expected %v, got %v", exp, got)
	}
	if phys != addr.Physical(uintptr(frame.Address())) {
		t.Fatalf("expected page-aligned translate to return the frame's base address, got %v", phys)
	}
}

func TestTranslateUnmappedAddress(t *testing.T) {
	newMapBackedPT(t)

	if _, err := Translate(addr.Virtual(0x4000)); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping, got %v", err)
	}
}
