// Package meta exposes the handful of facts about the running kernel image
// that nothing except the linker knows: where the image begins and ends in
// physical memory, where its higher-half offset is, and where the boot
// stack lives. It also stores the multiboot information pointer handed off
// by the trampoline so that later init stages do not have to thread it
// through every call.
package meta

import "nucleus/kernel/config"

// kernelBegin, kernelEnd and kernelOffset are backed by assembly that takes
// the address of symbols the linker script places at the start and end of
// the kernel image and at the start of the higher-half offset region.
func kernelBegin() uintptr
func kernelEnd() uintptr
func kernelOffset() uintptr
func stackBegin() uintptr

// KernelBegin returns the physical load address of the kernel image.
func KernelBegin() uintptr { return kernelBegin() }

// KernelEnd returns the physical address one past the end of the kernel
// image.
func KernelEnd() uintptr { return kernelEnd() }

// KernelSize returns the size in bytes of the kernel image.
func KernelSize() uintptr { return KernelEnd() - KernelBegin() }

// KernelOffset returns the virtual-to-physical offset applied to the
// higher-half kernel image by the boot trampoline's initial page tables.
func KernelOffset() uintptr { return kernelOffset() }

// StackBegin returns the physical address of the lowest byte of the boot
// stack, as reserved by boot/stack.s.
func StackBegin() uintptr { return stackBegin() }

// StackSize returns the size in bytes of the boot stack.
func StackSize() uintptr { return config.StackSize }

// StackEnd returns the physical address one past the end of the boot
// stack.
func StackEnd() uintptr { return StackBegin() + StackSize() }

// bootInfoAddr is the physical address of the multiboot2 information
// structure, recorded once at entry by SetBootInfoAddr.
var bootInfoAddr uintptr

// SetBootInfoAddr records the physical address of the multiboot2
// information structure passed to the kernel in RDI. It must be called
// exactly once, before any other package reads BootInfoAddr.
func SetBootInfoAddr(addr uintptr) {
	bootInfoAddr = addr
}

// BootInfoAddr returns the address recorded by SetBootInfoAddr.
func BootInfoAddr() uintptr {
	return bootInfoAddr
}
