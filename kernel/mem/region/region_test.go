package region

import (
	"testing"

	"github.com/nyxkernel/core/kernel/hal/multiboot"
)

func TestEnd(t *testing.T) {
	r := Region{Base: 0x1000, Size: 0x2000}
	if got := r.End(); got != 0x3000 {
		t.Fatalf("End() = 0x%x; want 0x3000", got)
	}
}

func TestStateOf(t *testing.T) {
	// stateOf maps each multiboot entry type onto a region State; Free is
	// also kept as the zero value of State.
	if Free != 0 {
		t.Fatalf("Free must remain the zero value of State")
	}

	specs := []struct {
		in  multiboot.MemoryEntryType
		exp State
	}{
		{multiboot.MemAvailable, Free},
		{multiboot.MemReserved, Reserved},
		{multiboot.MemAcpiReclaimable, Used},
		{multiboot.MemNvs, Used},
	}
	for i, spec := range specs {
		if got := stateOf(spec.in); got != spec.exp {
			t.Errorf("[spec %d] stateOf(%d) = %d; want %d", i, spec.in, got, spec.exp)
		}
	}
}
