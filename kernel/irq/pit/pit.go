// Package pit programs the 8253/8254 programmable interval timer's channel
// 0 as the periodic tick the scheduler (kernel/sched) piggybacks on.
package pit

import (
	"github.com/nyxkernel/core/kernel"
	"github.com/nyxkernel/core/kernel/cpu"
	"github.com/nyxkernel/core/kernel/irq"
	"github.com/nyxkernel/core/kernel/irq/pic"
	"github.com/nyxkernel/core/kernel/sched"
)

const (
	commandPort  = 0x43
	channel0Port = 0x40

	// baseFrequency is the PIT's fixed input clock, in Hz.
	baseFrequency = 1193181

	// rateGeneratorLoHi selects channel 0, lo/hi-byte access, mode 2
	// (rate generator), binary (not BCD) counting.
	rateGeneratorLoHi = 0x34

	minHz = 19  // counter_for(minHz-1) would overflow the 16-bit counter.
	maxHz = baseFrequency / 18
)

var (
	// ErrFrequencyOutOfRange is returned when the requested tick rate
	// does not produce a counter value in [18, 1193180].
	ErrFrequencyOutOfRange = &kernel.Error{Module: "pit", Message: "requested frequency is out of range"}

	outbFn         = cpu.Outb
	handleIRQFn    = irq.HandleIRQ
	setMaskFn      = pic.SetMask
	eoiFn          = pic.EOI
	schedulerTickFn = sched.Tick
)

// counterFor derives the 16-bit reload value for a rate-generator tick at
// hz, per the PIT's fixed base frequency.
func counterFor(hz uint32) uint32 {
	return baseFrequency / hz
}

// Init programs channel 0 for a periodic tick at hz (asserting the derived
// counter falls in [18, 1193180]), installs the timer handler on IRQ0, and
// unmasks it.
func Init(hz uint32) *kernel.Error {
	counter := counterFor(hz)
	if counter < 18 || counter > 1193180 {
		return ErrFrequencyOutOfRange
	}

	outbFn(commandPort, rateGeneratorLoHi)
	outbFn(channel0Port, uint8(counter&0xff))
	outbFn(channel0Port, uint8(counter>>8))

	handleIRQFn(pic.MasterVectorOffset, timerHandler)
	setMaskFn(0, false)

	return nil
}

func timerHandler(frame *irq.Frame, regs *irq.Regs) {
	schedulerTickFn()
	eoiFn(0)
}
