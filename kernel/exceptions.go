package kernel

import (
	"nucleus/kernel/irq"
)

// installExceptionHandlers registers the Go-level logic for the five
// vectors idt.Init wires to assembly trampolines (spec.md §4.2). #BP logs
// the frame and returns; the rest are unrecoverable and hand off to
// irq.Panic, which renders mnemonic, vector, error code, CR2 (where
// applicable) and the faulting frame before halting.
func installExceptionHandlers() {
	irq.HandleException(irq.Breakpoint, handleBreakpoint)

	irq.HandleException(irq.DivisionError, func(frame *irq.Frame, regs *irq.Regs) {
		irq.Panic(irq.DivisionError, 0, frame, regs)
	})
	irq.HandleExceptionWithCode(irq.DoubleFault, func(errCode uint64, frame *irq.Frame, regs *irq.Regs) {
		irq.Panic(irq.DoubleFault, errCode, frame, regs)
	})
	irq.HandleExceptionWithCode(irq.GeneralProtectionFault, func(errCode uint64, frame *irq.Frame, regs *irq.Regs) {
		irq.Panic(irq.GeneralProtectionFault, errCode, frame, regs)
	})
	irq.HandleExceptionWithCode(irq.PageFault, func(errCode uint64, frame *irq.Frame, regs *irq.Regs) {
		irq.Panic(irq.PageFault, errCode, frame, regs)
	})
}

// handleBreakpoint logs the same "(#BP, 0x03) @ rip=..." line irq.Panic
// renders for a fatal exception and returns, resuming execution at the
// instruction after the INT3 that raised it.
func handleBreakpoint(frame *irq.Frame, regs *irq.Regs) {
	w := irq.PanicWriter
	if w == nil {
		return
	}
	irq.RenderException(w, irq.Breakpoint, 0, frame)
}
