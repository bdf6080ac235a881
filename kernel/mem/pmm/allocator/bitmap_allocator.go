// Package allocator implements the physical frame allocator: a linked list
// of per-region bitmaps, one RegionChunk per usable memory region reported
// by the bootloader (spec.md §4.3). It is grounded on
// original_source/arch/x86_64/memory/physical/bitmap.rs's MemoryChunk /
// BitmapAllocator, translated from a raw-pointer Rust structure into the
// same shape built from unsafe.Pointer arithmetic over memory this package
// maps for itself during Init.
package allocator

import (
	"unsafe"

	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/kerror"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/vmm"
	"nucleus/kernel/sync"
)

var (
	errOutOfFrames   = &kerror.Error{Module: "pmm", Message: "no free frames remain in any region"}
	errFrameNotOwned = &kerror.Error{Module: "pmm", Message: "frame does not belong to any tracked region"}
	errNoUsableRAM   = &kerror.Error{Module: "pmm", Message: "bootloader reported no usable memory regions"}
)

// RegionChunk is one node in the allocator's per-region bitmap list. It
// lives in memory this package maps for itself during Init rather than in
// a Go-managed slice or struct, since no heap exists yet to back one (see
// the design note in spec.md §9 on raw pointer lists inside the PMM).
type RegionChunk struct {
	numFrames uint64
	basePhys  mem.PhysAddr
	bitmapPtr uintptr
	next      *RegionChunk
}

func (c *RegionChunk) bitmapBytes() uint64 {
	return (c.numFrames + 7) / 8
}

func (c *RegionChunk) readByte(i uint64) byte {
	return *(*byte)(unsafe.Pointer(c.bitmapPtr + uintptr(i)))
}

func (c *RegionChunk) writeByte(i uint64, v byte) {
	*(*byte)(unsafe.Pointer(c.bitmapPtr + uintptr(i))) = v
}

// BitmapAllocator is the physical frame allocator described by spec.md
// §4.3: AllocateFrame/DeallocateFrame walk a singly linked list of
// RegionChunks, lowest address first.
type BitmapAllocator struct {
	lock sync.Spinlock
	head *RegionChunk

	// bootstrapVirtBase and bootstrapHugePages describe the temporary
	// mapping Init installed to hold its own metadata, so bringup can
	// tear it down once the permanent physical-memory map is live
	// (spec.md §4.5 step 2's "optional cleanup").
	bootstrapVirtBase  mem.VirtAddr
	bootstrapHugePages int
}

// dummyAllocator is the "no-op frame allocator" spec.md §4.3 step 3 and §9
// require for PMM bootstrap: the mapper used to map the PMM's own metadata
// region must accept a frame allocator, but no frame can be allocated
// before the PMM exists. It always fails; this is only safe because the
// boot trampoline pre-built every intermediate page-table level the
// bootstrap mapping touches, so MapTo never actually needs a fresh frame
// from it.
type dummyAllocator struct{}

func (dummyAllocator) alloc() (pmm.Frame, *kerror.Error) {
	return pmm.InvalidFrame, errDummyAllocatorUsed
}

var errDummyAllocatorUsed = &kerror.Error{Module: "pmm", Message: "bootstrap mapping required a page-table frame the trampoline did not pre-map"}

// mapMetadataFn bootstrap-maps [virtBase, virtBase+hugePages*2MiB) to
// physBase using 2 MiB pages, through a Mapper addressed at kernelOffset.
// Tests override this to avoid touching CR3/INVLPG, mirroring the
// teacher's mapFn/reserveRegionFn indirection in bitmap_allocator.go.
var mapMetadataFn = func(virtBase mem.VirtAddr, physBase mem.PhysAddr, hugePages int, kernelOffset uintptr) *kerror.Error {
	var dummy dummyAllocator
	mapper := vmm.NewMapper(kernelOffset)
	return mapper.MapRange(
		vmm.PageFromAddress(virtBase),
		pmm.FrameFromAddress(physBase),
		hugePages,
		vmm.FlagPresent|vmm.FlagRW|vmm.FlagHugePage,
		dummy.alloc,
	)
}

// metadataAddrFn resolves the virtual base address mapMetadataFn just
// mapped into an address this process can actually dereference. In the
// kernel build that mapping is live, so it is the identity function; tests
// override it to redirect into an ordinary Go byte slice standing in for
// the mapped region, since virtBase itself is never backed by real memory
// under a hosted test binary.
var metadataAddrFn = func(virtBase mem.VirtAddr) uintptr {
	return uintptr(virtBase)
}

// usableRegion is one bootloader-reported region after alignment, used by
// both passes over the memory map during Init.
type usableRegion struct {
	startFrame uint64
	endFrame   uint64 // exclusive
}

func (r usableRegion) frameCount() uint64 { return r.endFrame - r.startFrame }

func (r usableRegion) bitmapBytes() uint64 { return (r.frameCount() + 7) / 8 }

// usableRegions visits every bootloader-reported region, aligns it inward
// to frame boundaries (spec.md §3: "aligned up at start and down at end to
// frame size, with length >= one frame") and calls visit once per region
// that survives alignment.
func usableRegions(visit func(usableRegion)) {
	pageSize := uint64(mem.PageSize)
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type != multiboot.MemAvailable {
			return true
		}

		start := (entry.PhysAddress + pageSize - 1) &^ (pageSize - 1)
		end := (entry.PhysAddress + entry.Length) &^ (pageSize - 1)
		if end <= start {
			return true
		}

		visit(usableRegion{startFrame: start / pageSize, endFrame: end / pageSize})
		return true
	})
}

// Init builds the BitmapAllocator by mapping its own metadata at the
// higher-half mirror of the kernel image and laying out one RegionChunk
// per usable memory region there (spec.md §4.3 steps 1-5). kernelEnd and
// kernelOffset come from kernel/meta; they are passed in rather than read
// directly so this package never imports the assembly-backed meta package,
// which keeps it link-free to exercise under a hosted test binary.
func Init(kernelEnd uintptr, kernelOffset uintptr) (*BitmapAllocator, *kerror.Error) {
	var (
		regionCount  uint64
		metadataSize mem.Size
	)
	usableRegions(func(r usableRegion) {
		regionCount++
		metadataSize += mem.Size(unsafe.Sizeof(RegionChunk{})) + mem.Size(r.bitmapBytes())
	})
	if regionCount == 0 {
		return nil, errNoUsableRAM
	}
	metadataSize = mem.AlignUp(metadataSize, mem.HugePageSize)

	physBase := mem.PhysAddr(mem.AlignUp(mem.Size(kernelEnd), mem.HugePageSize))
	virtBase := mem.VirtAddr(uintptr(physBase) + kernelOffset)
	hugePages := int(metadataSize / mem.HugePageSize)

	if err := mapMetadataFn(virtBase, physBase, hugePages, kernelOffset); err != nil {
		return nil, err
	}

	base := metadataAddrFn(virtBase)
	mem.Memset(base, 0, uintptr(metadataSize))

	alloc := &BitmapAllocator{bootstrapVirtBase: virtBase, bootstrapHugePages: hugePages}
	cur := (*RegionChunk)(unsafe.Pointer(base))
	alloc.head = cur

	var prev *RegionChunk
	usableRegions(func(r usableRegion) {
		cur.numFrames = r.frameCount()
		cur.basePhys = mem.PhysAddr(r.startFrame * uint64(mem.PageSize))
		cur.bitmapPtr = uintptr(unsafe.Pointer(cur)) + unsafe.Sizeof(RegionChunk{})

		next := (*RegionChunk)(unsafe.Pointer(cur.bitmapPtr + uintptr(cur.bitmapBytes())))
		cur.next = next
		prev = cur
		cur = next
	})
	prev.next = nil

	reservedWatermark := physBase + mem.PhysAddr(metadataSize)
	alloc.reserveBelow(reservedWatermark)

	alloc.printStats()
	return alloc, nil
}

// reserveBelow marks every frame whose base physical address is below
// watermark as allocated, so the kernel image and the PMM's own bootstrap
// metadata are never handed out (spec.md §4.3 step 5, §9's resolution of
// the "frames below kernel_end" open question).
func (a *BitmapAllocator) reserveBelow(watermark mem.PhysAddr) {
	for chunk := a.head; chunk != nil; chunk = chunk.next {
		for frameIdx := uint64(0); frameIdx < chunk.numFrames; frameIdx++ {
			addr := chunk.basePhys + mem.PhysAddr(frameIdx*uint64(mem.PageSize))
			if addr >= watermark {
				break
			}
			byteIdx := frameIdx / 8
			bit := frameIdx % 8
			chunk.writeByte(byteIdx, chunk.readByte(byteIdx)|(1<<bit))
		}
	}
}

func firstClearBit(b byte) uint {
	for bit := uint(0); bit < 8; bit++ {
		if b&(1<<bit) == 0 {
			return bit
		}
	}
	return 8
}

// AllocateFrame returns a previously free frame, marking it allocated. It
// walks chunks head to tail and, within a chunk, scans bitmap bytes for the
// first one that is not saturated (spec.md §4.3's allocation algorithm),
// so the lowest-addressed free frame always wins ties.
func (a *BitmapAllocator) AllocateFrame() (pmm.Frame, *kerror.Error) {
	a.lock.Acquire()
	defer a.lock.Release()

	for chunk := a.head; chunk != nil; chunk = chunk.next {
		bitmapBytes := chunk.bitmapBytes()
		for byteIdx := uint64(0); byteIdx < bitmapBytes; byteIdx++ {
			b := chunk.readByte(byteIdx)
			if b == 0xFF {
				continue
			}

			bit := firstClearBit(b)
			frameIdx := byteIdx*8 + uint64(bit)
			if frameIdx >= chunk.numFrames {
				// Only the tail byte's don't-care bits remain; this
				// chunk has nothing left to give.
				break
			}

			chunk.writeByte(byteIdx, b|(1<<bit))
			addr := chunk.basePhys + mem.PhysAddr(frameIdx*uint64(mem.PageSize))
			return pmm.FrameFromAddress(addr), nil
		}
	}

	return pmm.InvalidFrame, errOutOfFrames
}

// DeallocateFrame marks frame free again. The caller must not double-free
// or free a frame it was never handed. A frame outside every tracked
// region is reported by returning errFrameNotOwned, not by a panic; a
// double free is not detected and just clears the already-clear bit.
func (a *BitmapAllocator) DeallocateFrame(frame pmm.Frame) *kerror.Error {
	a.lock.Acquire()
	defer a.lock.Release()

	addr := frame.Address()
	for chunk := a.head; chunk != nil; chunk = chunk.next {
		end := chunk.basePhys + mem.PhysAddr(chunk.numFrames*uint64(mem.PageSize))
		if addr < chunk.basePhys || addr >= end {
			continue
		}

		frameIdx := uint64(addr-chunk.basePhys) / uint64(mem.PageSize)
		byteIdx := frameIdx / 8
		bit := frameIdx % 8
		chunk.writeByte(byteIdx, chunk.readByte(byteIdx)&^(1<<bit))
		return nil
	}

	return errFrameNotOwned
}

// UnmapBootstrapMapping tears down the temporary huge-page mapping Init
// used to reach its own metadata before the permanent physical-memory
// linear map existed. mapper must be addressed the same way Init's was
// (kernel_offset); calling this after the linear map is live is safe
// because the RegionChunk list itself lives in physical memory now also
// reachable through the PMO.
func (a *BitmapAllocator) UnmapBootstrapMapping(mapper *vmm.Mapper) *kerror.Error {
	pagesPerHugePage := uintptr(mem.HugePageSize / mem.PageSize)
	for i := 0; i < a.bootstrapHugePages; i++ {
		page := vmm.PageFromAddress(a.bootstrapVirtBase) + vmm.Page(uintptr(i)*pagesPerHugePage)
		_, flush, err := mapper.Unmap(page)
		if err != nil {
			return err
		}
		flush.Flush()
	}
	return nil
}

func (a *BitmapAllocator) printStats() {
	var total, free uint64
	for chunk := a.head; chunk != nil; chunk = chunk.next {
		total += chunk.numFrames
		for byteIdx := uint64(0); byteIdx < chunk.bitmapBytes(); byteIdx++ {
			b := chunk.readByte(byteIdx)
			for bit := uint64(0); bit < 8; bit++ {
				frameIdx := byteIdx*8 + bit
				if frameIdx >= chunk.numFrames {
					break
				}
				if b&(1<<bit) == 0 {
					free++
				}
			}
		}
	}
	early.Printf("[pmm] %d/%d frames free\n", free, total)
}
