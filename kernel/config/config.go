// Package config holds compile-time sizing constants that stand in for the
// boot-time configuration baker (an external collaborator; see spec.md §1).
// The assembly trampoline does not read these constants: boot/stack.s
// defines its own STACK_SIZE and MAPPING_SIZE with the same values, and
// the two copies are kept equal by hand.
package config

const (
	// StackSize is the size, in bytes, of the statically reserved BSS
	// region the trampoline uses as the initial kernel stack.
	StackSize = 64 * 1024

	// InitialMappingSize is the number of bytes the trampoline maps
	// identity and higher-half using 2 MiB pages before any Go code runs.
	// It must be large enough to cover the kernel image plus the PMM's
	// bootstrap metadata region (see kernel/mem/pmm/allocator).
	InitialMappingSize = 64 * 1024 * 1024
)
