// Package pic drives the two cascaded 8259 programmable interrupt
// controllers, remapping their vectors out of the CPU exception range and
// providing masking and end-of-interrupt primitives.
package pic

import "github.com/nyxkernel/core/kernel/cpu"

const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xa0
	slaveDataPort     = 0xa1

	// delayPort is an unused I/O port; writing to it burns enough bus
	// cycles for the PIC to process the previous command.
	delayPort = 0x80

	icw1Init     = 0x10
	icw1ICW4     = 0x01
	icw4Mode8086 = 0x01

	// MasterVectorOffset is the IDT vector IRQ0 (the PIT) is remapped to.
	MasterVectorOffset = 0x20

	// SlaveVectorOffset is the IDT vector IRQ8 is remapped to.
	SlaveVectorOffset = 0x28

	masterSlaveIRQLine = 1 << 2 // IRQ2: where the slave PIC is wired on the master.
	slaveCascadeID     = 2      // the slave's own identity, reported back to the master.

	// maskAll disables every IRQ line on a PIC.
	maskAll = 0xff
)

var (
	outbFn = cpu.Outb
	inbFn  = cpu.Inb
)

func ioWait() {
	outbFn(delayPort, 0)
}

// Init remaps the master/slave vector offsets and masks every line. Callers
// enable individual IRQs afterwards via SetMask.
func Init() {
	// ICW1: begin initialization, expect an ICW4.
	outbFn(masterCommandPort, icw1Init|icw1ICW4)
	ioWait()
	outbFn(slaveCommandPort, icw1Init|icw1ICW4)
	ioWait()

	// ICW2: vector offsets.
	outbFn(masterDataPort, MasterVectorOffset)
	ioWait()
	outbFn(slaveDataPort, SlaveVectorOffset)
	ioWait()

	// ICW3: wiring between master and slave.
	outbFn(masterDataPort, masterSlaveIRQLine)
	ioWait()
	outbFn(slaveDataPort, slaveCascadeID)
	ioWait()

	// ICW4: 8086/88 mode.
	outbFn(masterDataPort, icw4Mode8086)
	ioWait()
	outbFn(slaveDataPort, icw4Mode8086)
	ioWait()

	outbFn(masterDataPort, maskAll)
	outbFn(slaveDataPort, maskAll)
}

// SetMask enables (mask=false) or disables (mask=true) the given IRQ line
// (0-15).
func SetMask(irq uint8, mask bool) {
	port := masterDataPort
	line := irq
	if irq >= 8 {
		port = slaveDataPort
		line -= 8
	}

	current := inbFn(uint16(port))
	if mask {
		current |= 1 << line
	} else {
		current &^= 1 << line
	}
	outbFn(uint16(port), current)
}

// EOI signals end-of-interrupt for irq. If irq came from the slave PIC, the
// slave must be acknowledged before the master.
func EOI(irq uint8) {
	const ackCommand = 0x20
	if irq >= 8 {
		outbFn(slaveCommandPort, ackCommand)
	}
	outbFn(masterCommandPort, ackCommand)
}
