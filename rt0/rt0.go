// Package rt0 is the narrow seam between the hand-written Multiboot2
// trampoline (boot/*.s) and the rest of the kernel, written in Go. Entry
// is the only symbol the trampoline calls; everything past it is ordinary
// Go calling convention.
package rt0

import "nucleus/kernel"

// Entry is reached by boot/boot.s's long_mode_start once the CPU is in
// 64-bit mode, paging is live and RSP points at the top of the boot stack.
// It has no Go body of its own (see rt0_amd64.s): it just establishes the
// argument in a form kmainTrampoline can read and calls it.
func Entry()

// kmainTrampoline is called by Entry with the Multiboot2 info pointer the
// loader passed in RDI. It exists as a separate, ordinary Go function
// (rather than inlining the call into the asm stub) so the boundary
// between hand-written assembly and normal Go code is exactly one frame
// wide.
//
//go:noinline
func kmainTrampoline(multibootInfoPtr uintptr) {
	kernel.Kmain(multibootInfoPtr)
}
