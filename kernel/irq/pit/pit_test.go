package pit

import (
	"testing"

	"github.com/nyxkernel/core/kernel/irq"
)

func TestCounterFor100Hz(t *testing.T) {
	if got := counterFor(100); got != 11931 {
		t.Fatalf("expected counter_for(100) == 11931, got %d", got)
	}
	if lo, hi := byte(11931&0xff), byte(11931>>8); lo != 0x9b || hi != 0x2e {
		t.Fatalf("expected lo=0x9b hi=0x2e, got lo=%#x hi=%#x", lo, hi)
	}
}

func TestInitRejectsOutOfRangeFrequency(t *testing.T) {
	restore := stubPorts(t)
	defer restore()

	// 1193181/2_000_000 == 0, below the 18 lower bound.
	if err := Init(2_000_000); err != ErrFrequencyOutOfRange {
		t.Fatalf("expected ErrFrequencyOutOfRange, got %v", err)
	}
}

func TestInitProgramsChannel0(t *testing.T) {
	restore := stubPorts(t)
	defer restore()

	var ports []uint16
	var values []uint8
	outbFn = func(port uint16, value uint8) {
		ports = append(ports, port)
		values = append(values, value)
	}

	var unmasked bool
	setMaskFn = func(line uint8, mask bool) {
		if line == 0 && !mask {
			unmasked = true
		}
	}

	var registeredVector uint8 = 0xff
	handleIRQFn = func(vector uint8, handler irq.IRQHandler) {
		registeredVector = vector
	}

	if err := Init(100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(values) != 3 || values[0] != rateGeneratorLoHi || values[1] != 0x9b || values[2] != 0x2e {
		t.Fatalf("unexpected port writes: %v", values)
	}
	if ports[0] != commandPort || ports[1] != channel0Port || ports[2] != channel0Port {
		t.Fatalf("unexpected ports: %v", ports)
	}
	if !unmasked {
		t.Fatal("expected IRQ0 to be unmasked")
	}
	if registeredVector != 0x20 {
		t.Fatalf("expected handler registered on vector 0x20, got %#x", registeredVector)
	}
}

func stubPorts(t *testing.T) func() {
	t.Helper()
	savedOutb, savedHandle, savedMask, savedEOI, savedTick := outbFn, handleIRQFn, setMaskFn, eoiFn, schedulerTickFn
	return func() {
		outbFn, handleIRQFn, setMaskFn, eoiFn, schedulerTickFn = savedOutb, savedHandle, savedMask, savedEOI, savedTick
	}
}
