// Package idt builds the kernel's Interrupt Descriptor Table. It wires a
// fixed, small set of vectors to hand-written assembly trampolines (see
// idt_amd64.s): the exceptions this kernel's memory-management core can
// actually encounter and wants a precise report for, rather than the full
// 256-entry table a general-purpose kernel would eventually need.
package idt

import (
	"unsafe"

	"nucleus/kernel/gdt"
	"nucleus/kernel/irq"
)

// gateType marks a descriptor as a 64-bit interrupt gate (as opposed to a
// trap gate or task gate); interrupt gates clear IF on entry, which this
// kernel relies on to keep exception handlers from being re-entered.
const gateType = 0xE

const gatePresent = 1 << 7

// entry is a 16-byte long-mode IDT gate descriptor.
type entry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

var table [32]entry

func setGate(vector uint8, handler uintptr, ist uint8) {
	table[vector] = entry{
		offsetLow:  uint16(handler),
		selector:   uint16(gdt.CodeSelector),
		ist:        ist,
		typeAttr:   gatePresent | gateType,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

// Init populates the IDT with the five vectors this kernel cares about and
// loads it. It must run after gdt.Init, since the #DF gate references the
// IST slot gdt.Init configures.
//
// Callers still need irq.HandleException / irq.HandleExceptionWithCode to
// install the Go-level logic that runs once a vector fires; Init only
// wires the CPU-facing plumbing.
func Init() {
	setGate(0, irq.IsrDivisionError(), 0)
	setGate(3, irq.IsrBreakpoint(), 0)
	setGate(8, irq.IsrDoubleFault(), gdt.DoubleFaultISTIndex+1)
	setGate(13, irq.IsrGeneralProtectionFault(), 0)
	setGate(14, irq.IsrPageFault(), 0)

	load(unsafe.Pointer(&table), uint16(unsafe.Sizeof(table)-1))
}

// load installs the IDT via LIDT. It has no Go equivalent.
func load(table unsafe.Pointer, limit uint16)
