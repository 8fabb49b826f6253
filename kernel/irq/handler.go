package irq

// ExceptionNum identifies one of the CPU's architectural exception vectors
// (0-31); the remaining vectors up to idtSize-1 are available for PIC-routed
// hardware IRQs and software use.
type ExceptionNum uint8

const (
	// DivideByZero occurs when dividing any number by 0 using DIV/IDIV.
	DivideByZero = ExceptionNum(0)

	// NMI (non-maskable interrupt) signals unrecoverable RAM or bus
	// errors, or an enabled watchdog timer firing.
	NMI = ExceptionNum(2)

	// Overflow occurs when an arithmetic result cannot fit in the
	// destination register.
	Overflow = ExceptionNum(4)

	// BoundRangeExceeded occurs when BOUND is invoked with an
	// out-of-range index.
	BoundRangeExceeded = ExceptionNum(5)

	// InvalidOpcode occurs when the CPU decodes an undefined instruction.
	InvalidOpcode = ExceptionNum(6)

	// DeviceNotAvailable occurs when an FPU/MMX/SSE instruction runs
	// while no FPU is available or FPU support is disabled via CR0.
	DeviceNotAvailable = ExceptionNum(7)

	// DoubleFault occurs when an exception is unhandled, or occurs while
	// already servicing one.
	DoubleFault = ExceptionNum(8)

	// InvalidTSS occurs when the TSS points at an invalid segment
	// selector.
	InvalidTSS = ExceptionNum(10)

	// SegmentNotPresent occurs when invoking a present gate with an
	// invalid stack segment selector.
	SegmentNotPresent = ExceptionNum(11)

	// StackSegmentFault occurs on a non-canonical stack access or a
	// GDT stack-limit violation.
	StackSegmentFault = ExceptionNum(12)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page directory table (PDT) or
	// one of its entries is not present, or a privilege/RW protection
	// check fails.
	PageFaultException = ExceptionNum(14)

	// FloatingPointException occurs for an FP instruction while CR0.NE=1
	// or an unmasked FP exception is pending.
	FloatingPointException = ExceptionNum(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = ExceptionNum(17)

	// MachineCheck occurs on internal CPU errors (memory, bus, cache).
	MachineCheck = ExceptionNum(18)

	// SIMDFloatingPointException occurs for an unmasked SSE exception
	// while CR4.OSXMMEXCPT is set; otherwise SIMD FP exceptions surface
	// as InvalidOpcode instead.
	SIMDFloatingPointException = ExceptionNum(19)
)

// vectorPushesErrorCode reports whether the CPU pushes an error code on the
// stack for this exception vector (x86_64 architecture manual, vol. 3,
// table 6-1).
func vectorPushesErrorCode(vec uint8) bool {
	switch vec {
	case 8, 10, 11, 12, 13, 14, 17:
		return true
	default:
		return false
	}
}

// ExceptionHandler handles an exception that does not push an error code.
// Any modification to frame/regs is propagated back to the faulting context
// if the handler returns.
type ExceptionHandler func(frame *Frame, regs *Regs)

// ExceptionHandlerWithCode handles an exception that pushes an error code.
type ExceptionHandlerWithCode func(errorCode uint64, frame *Frame, regs *Regs)

// IRQHandler handles a hardware interrupt routed through the PIC (vectors
// pic.MasterVectorOffset and up).
type IRQHandler func(frame *Frame, regs *Regs)

var (
	exceptionHandlers         [idtSize]ExceptionHandler
	exceptionHandlersWithCode [idtSize]ExceptionHandlerWithCode
	irqHandlers               [idtSize]IRQHandler
)

// HandleException registers handler for the given exception vector,
// replacing the default fault-printing handler Init installed.
func HandleException(num ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[num] = handler
}

// HandleExceptionWithCode registers handler for the given error-code-pushing
// exception vector, replacing the default fault-printing handler Init
// installed.
func HandleExceptionWithCode(num ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionHandlersWithCode[num] = handler
}

// HandleIRQ registers handler for the given external interrupt vector
// (typically one remapped by the pic package), replacing the default
// fault-printing handler Init installed.
func HandleIRQ(vector uint8, handler IRQHandler) {
	irqHandlers[vector] = handler
}
