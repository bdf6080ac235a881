// Package cpu exposes the architecture primitives that cannot be expressed
// in Go and must be implemented in assembly (see cpu_amd64.s).
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling (STI).
func EnableInterrupts()

// DisableInterrupts disables interrupt handling (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// FlushTLBEntry flushes the TLB entry for a particular virtual address
// (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// ActiveCR3 returns the physical address currently loaded in CR3.
func ActiveCR3() uintptr

// SwitchCR3 loads CR3 with the given physical address, flushing the
// entire TLB.
func SwitchCR3(physAddr uintptr)

// ReadCR2 returns the faulting address recorded in CR2.
func ReadCR2() uint64

// ID executes CPUID with EAX=leaf and returns the values left in EAX, EBX,
// ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Outb writes a byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// WithoutInterrupts disables interrupts for the duration of fn and restores
// them afterwards. The serial console uses it to bracket its writes so
// they are not re-entered from an exception handler (spec.md §5).
func WithoutInterrupts(fn func()) {
	DisableInterrupts()
	fn()
	EnableInterrupts()
}

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
