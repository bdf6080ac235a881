// Package mem ties the physical frame allocator, the page-table mapper and
// the heap allocator together into the one-shot bringup sequence the
// kernel runs during early boot (spec.md §4.5). It is grounded on the
// teacher's kernel/kmain/kmain.go: a straight-line sequence of fallible
// init calls, each one unwrapped immediately so the caller can panic with
// a message naming the stage that failed.
package mem

import (
	"nucleus/kernel/hal/multiboot"
	"nucleus/kernel/kerror"
	"nucleus/kernel/kfmt/early"
	"nucleus/kernel/mem/heap"
	"nucleus/kernel/mem/pmm"
	"nucleus/kernel/mem/pmm/allocator"
	"nucleus/kernel/mem/vmm"
)

var (
	errTotalRAMUnknown = &kerror.Error{Module: "bringup", Message: "bootloader reported no usable memory regions"}

	// errStage{PMM,MapPhys,Reserved,Heap} name the bringup stage a
	// fallible step belongs to, per spec.md §7's "k_main unwraps with
	// explicit panic messages naming the failed stage". Bringup logs the
	// originating subsystem's own error to the console before returning
	// one of these, so the stage name and the underlying cause both reach
	// the operator.
	errStagePMM      = &kerror.Error{Module: "bringup", Message: "kernel failed to initialize physical memory manager"}
	errStageMapPhys  = &kerror.Error{Module: "bringup", Message: "kernel failed to map physical memory"}
	errStageReserved = &kerror.Error{Module: "bringup", Message: "kernel failed to map reserved region"}
	errStageHeap     = &kerror.Error{Module: "bringup", Message: "kernel failed to allocate heap"}
)

// logStageCause prints the subsystem error a stage wraps, so replacing it
// with a named stage error below doesn't throw away diagnostic detail.
func logStageCause(cause *kerror.Error) {
	early.Printf("[%s] %s\n", cause.Module, cause.Message)
}

// Kernel bundles the three subsystems bringup wires together, so the rest
// of the kernel reaches them through one value instead of three globals.
type Kernel struct {
	PMM  *allocator.BitmapAllocator
	Heap *heap.Heap

	// pmoMapper is anchored at PhysMemOffset; every mapping installed
	// after bringup completes (heap growth, driver MMIO, ...) goes
	// through it rather than the bootstrap kernel_offset mapper.
	pmoMapper *vmm.Mapper
}

// PMOMapper returns the mapper anchored at the physical-memory linear map
// installed by Bringup, for use by later subsystems that need to install
// their own mappings.
func (k *Kernel) PMOMapper() *vmm.Mapper {
	return k.pmoMapper
}

func totalUsableRAM() (total Size, err *kerror.Error) {
	var sum uint64
	var sawAny bool
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type == multiboot.MemAvailable {
			sawAny = true
			sum += entry.Length
		}
		return true
	})
	if !sawAny {
		return 0, errTotalRAMUnknown
	}
	return AlignUp(Size(sum), HugePageSize), nil
}

// Bringup runs the six-step sequence of spec.md §4.5: it builds the
// physical frame allocator, maps all of physical memory at PhysMemOffset
// with 2 MiB pages, identity-maps the legacy low-memory region, maps and
// initializes the kernel heap, and returns the assembled Kernel.
// kernelEnd and kernelOffset come from kernel/meta, passed in rather than
// read directly so this package stays free of the assembly-backed symbols
// and is safe to exercise with fabricated inputs.
func Bringup(kernelEnd uintptr, kernelOffset uintptr) (*Kernel, *kerror.Error) {
	// Step 1: pmm_init.
	pmmAlloc, err := allocator.Init(kernelEnd, kernelOffset)
	if err != nil {
		logStageCause(err)
		return nil, errStagePMM
	}

	// Step 2: map_physical_memory at kernel_offset, using the PMM for
	// intermediate page-table frames.
	totalRAM, err := totalUsableRAM()
	if err != nil {
		logStageCause(err)
		return nil, errStageMapPhys
	}

	bootMapper := vmm.NewMapper(kernelOffset)
	hugePages := int(totalRAM / HugePageSize)
	if err := bootMapper.MapRange(
		vmm.PageFromAddress(VirtAddr(PhysMemOffset)),
		pmm.FrameFromAddress(0),
		hugePages,
		vmm.FlagPresent|vmm.FlagRW|vmm.FlagHugePage,
		pmmAlloc.AllocateFrame,
	); err != nil {
		logStageCause(err)
		return nil, errStageMapPhys
	}

	// Best-effort: the bootstrap metadata mapping Init installed is no
	// longer needed now that all of physical memory is reachable through
	// PhysMemOffset.
	_ = pmmAlloc.UnmapBootstrapMapping(bootMapper)

	// Step 3: acquire the permanent mapper, p2v(p) = PhysMemOffset + p.
	pmoMapper := vmm.NewMapper(uintptr(PhysMemOffset))

	// Step 4: map_reserved_region, identity-mapping [0, 1 MiB) with 4 KiB
	// pages so legacy MMIO/BIOS areas stay addressable.
	reservedFrames := int(ReservedRegionSize / PageSize)
	if err := pmoMapper.IdentityMapRange(
		pmm.FrameFromAddress(0),
		reservedFrames,
		vmm.FlagPresent|vmm.FlagRW,
		pmmAlloc.AllocateFrame,
	); err != nil {
		logStageCause(err)
		return nil, errStageReserved
	}

	// Step 5: allocate_heap, mapping [HeapBegin, HeapBegin+HeapSize) to
	// freshly allocated frames.
	heapPages := int(HeapSize / PageSize)
	if err := pmoMapper.AllocateRange(
		vmm.PageFromAddress(VirtAddr(HeapBegin)),
		heapPages,
		vmm.FlagPresent|vmm.FlagRW,
		pmmAlloc.AllocateFrame,
	); err != nil {
		logStageCause(err)
		return nil, errStageHeap
	}

	// Step 6: initialize the heap allocator over that range.
	var h heap.Heap
	h.Init(HeapBegin, HeapBegin+uintptr(HeapSize))

	return &Kernel{PMM: pmmAlloc, Heap: &h, pmoMapper: pmoMapper}, nil
}
