package kernel

import (
	"nucleus/kernel/driver/serial"
	"nucleus/kernel/gdt"
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/idt"
	"nucleus/kernel/irq"
	"nucleus/kernel/kerror"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/mem"
	"nucleus/kernel/meta"
)

var errKmainReturned = &kerror.Error{Module: "kmain", Message: "Kmain returned"}

// kernelState holds the subsystems Bringup assembles, reachable after boot
// for anything that needs to grow the heap or install further mappings.
var kernelState *mem.Kernel

// Kmain is the kernel symbol the rt0 package calls (via
// rt0.kmainTrampoline). It is invoked after the trampoline has built the
// initial page tables and switched onto the boot stack, and is passed, as
// an ordinary Go argument, the physical address of the multiboot2
// information structure that the trampoline handed to rt0.Entry in RDI.
//
// Control flow here follows the fixed bringup order: attach the console,
// build the GDT and IDT, wire the exception handlers, then hand off to
// mem.Bringup for the PMM/VMM/heap sequence. Kmain is not expected to
// return; if it does, the trampoline halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr uintptr) {
	meta.SetBootInfoAddr(multibootInfoPtr)
	multiboot.SetInfoPtr(multibootInfoPtr)

	console := serial.Init()
	early.SetOutputSink(console)
	irq.PanicWriter = console

	early.Printf("starting nucleus\n")

	gdt.Init()
	idt.Init()
	installExceptionHandlers()

	k, err := mem.Bringup(meta.KernelEnd(), meta.KernelOffset())
	if err != nil {
		Panic(err)
	}
	kernelState = k

	early.Printf("bringup complete\n")

	// Kmain is not expected to return; Panic here (rather than a bare
	// for{}) keeps the compiler from eliminating errKmainReturned as
	// dead code and gives a diagnostic if control ever does fall through.
	Panic(errKmainReturned)
}
