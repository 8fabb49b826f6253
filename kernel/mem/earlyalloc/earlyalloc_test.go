package earlyalloc

import (
	"testing"
	"unsafe"

	"github.com/nyxkernel/core/kernel/mem/addr"
)

func TestAllocateAdvancesAndAligns(t *testing.T) {
	buf := make([]byte, 4096)
	base := addr.Physical(uintptr(unsafe.Pointer(&buf[0])))

	a := New(base, base+addr.Physical(len(buf)))

	type thing struct {
		x uint64
		y uint32
	}

	p1, err := Allocate[thing](a, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uintptr(unsafe.Pointer(p1))%unsafe.Alignof(thing{}) != 0 {
		t.Fatalf("allocation not aligned")
	}

	p2, err := Allocate[thing](a, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if uintptr(unsafe.Pointer(p2))-uintptr(unsafe.Pointer(p1)) < unsafe.Sizeof(thing{}) {
		t.Fatalf("second allocation overlaps the first")
	}
}

func TestAllocateOutOfSpace(t *testing.T) {
	buf := make([]byte, 8)
	base := addr.Physical(uintptr(unsafe.Pointer(&buf[0])))
	a := New(base, base+addr.Physical(len(buf)))

	if _, err := Allocate[[64]byte](a, 1); err != ErrOutOfSpace {
		t.Fatalf("expected ErrOutOfSpace, got %v", err)
	}
}

func TestCapacityAndIntoAddrBegin(t *testing.T) {
	a := New(addr.Physical(0x1000), addr.Physical(0x2000))
	if got := a.Capacity(); got != 0x1000 {
		t.Fatalf("Capacity() = %d; want 0x1000", got)
	}

	a.AlignBegin(0x100)
	if got := a.IntoAddrBegin(); got != 0x1000 {
		t.Fatalf("IntoAddrBegin() = 0x%x; want 0x1000", got)
	}
}
