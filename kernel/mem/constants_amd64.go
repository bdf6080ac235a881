package mem

// PointerShift is equal to log2(unsafe.Sizeof(uintptr)) on amd64.
const PointerShift = 3

// PageShift is equal to log2(PageSize) and is used to convert between a
// physical/virtual address and its containing page/frame number.
const PageShift = 12

// PageSize is the system's base page size in bytes.
const PageSize = Size(1 << PageShift)

// HugePageShift is equal to log2(HugePageSize).
const HugePageShift = 21

// HugePageSize is the size, in bytes, of a 2 MiB huge page.
const HugePageSize = Size(1 << HugePageShift)

const (
	// PhysMemOffset is the fixed virtual address at which the mapper
	// linearly maps all usable physical memory (spec.md §3, PMO).
	PhysMemOffset uintptr = 0xFFFF_8000_0000_0000

	// HeapBegin is the fixed virtual address of the kernel heap.
	HeapBegin uintptr = 0xFFFF_C000_0000_0000

	// HeapSize is the size, in bytes, of the kernel heap.
	HeapSize = 4 * Mb

	// ReservedRegionSize is the size, in bytes, of the low memory region
	// identity-mapped for legacy MMIO/BIOS access.
	ReservedRegionSize = Mb
)
