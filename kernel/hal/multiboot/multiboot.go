// Package multiboot parses the Multiboot2 information structure the
// bootloader leaves in memory and passes to the kernel entry point. Only
// the memory map tag (used to seed the physical frame allocator) is
// decoded; the other tags are located by type but their contents are not
// interpreted.
package multiboot

import "unsafe"

type tagType uint32

const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the multiboot info section header.
type info struct {
	// totalSize is the total size of the multiboot info section.
	totalSize uint32

	// reserved is always zero.
	reserved uint32
}

// tagHeader precedes each tag in the info section.
type tagHeader struct {
	tagType tagType

	// size is the size of the tag including the header but excluding any
	// padding; each tag starts at an 8-byte aligned address.
	size uint32
}

// mmapHeader describes the header of the memory map tag.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// MemoryEntryType classifies a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates RAM usable by the frame allocator.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates memory the frame allocator must never hand out.
	MemReserved

	// MemAcpiReclaimable indicates ACPI tables that can be reclaimed once
	// parsed.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved across ACPI sleep
	// states.
	MemNvs

	// memUnknown bounds the known entry types; anything at or above it is
	// normalized to MemReserved.
	memUnknown
)

// MemoryMapEntry describes one physical memory region reported by the
// bootloader.
type MemoryMapEntry struct {
	// PhysAddress is the start of the region.
	PhysAddress uint64

	// Length is the size of the region in bytes.
	Length uint64

	// Type classifies the region.
	Type MemoryEntryType

	_ uint32 // reserved, always zero
}

var infoData uintptr

// MemRegionVisitor is invoked by VisitMemRegions for each reported memory
// region. Returning false aborts the scan early.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr records the physical address of the multiboot info structure
// passed in RDI at kernel entry. It must be called before any other
// function in this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// InfoPtr returns the pointer most recently set by SetInfoPtr.
func InfoPtr() uintptr {
	return infoData
}

// VisitMemRegions invokes visitor once per entry in the bootloader-supplied
// memory map, in the order the bootloader reported them. Entries with an
// unrecognized type are normalized to MemReserved before the visitor sees
// them, so a visitor never needs to special-case an unknown type.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	for curPtr != endPtr {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// findTagByType scans the multiboot info data for the start of the tag with
// the given type. It returns a pointer to the tag's contents (excluding its
// 8-byte header) and the content length. It returns (0, 0) if no such tag
// is present.
func findTagByType(wantType tagType) (uintptr, uint32) {
	curPtr := infoData + 8

	for {
		hdr := (*tagHeader)(unsafe.Pointer(curPtr))
		if hdr.tagType == tagMbSectionEnd {
			return 0, 0
		}
		if hdr.tagType == wantType {
			return curPtr + 8, hdr.size - 8
		}

		// Tags are 8-byte aligned.
		curPtr += uintptr(int32(hdr.size+7) & ^int32(7))
	}
}
