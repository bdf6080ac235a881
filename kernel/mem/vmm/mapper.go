// Package vmm implements the kernel's page-table mapper: a view over the
// active PML4 parameterized by the virtual offset at which raw physical
// frames are readable (spec.md §4.4). Unlike this kernel's teacher, which
// accesses inactive tables through a recursive self-mapping trick, every
// mapper here is addressed through that fixed offset — the offset the
// bootstrap mapper uses is the trampoline's kernel_offset, and the offset
// every later mapper uses is the physical memory linear map (PMO) installed
// by kernel/mem/bringup.
package vmm

import (
	"unsafe"

	"nucleus/kernel/cpu"
	"nucleus/kernel/kerror"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

// activeCR3Fn and flushTLBEntryFn indirect the two privileged instructions
// this package needs (MOV from CR3, INVLPG). Tests override them, since
// executing either from unprivileged hosted test code would fault; the
// kernel build leaves them pointed at the real cpu primitives.
var (
	activeCR3Fn     = cpu.ActiveCR3
	flushTLBEntryFn = cpu.FlushTLBEntry

	// ptePtrFn resolves an entry address to a pointer. Tests override it
	// to redirect fabricated "physical" addresses into ordinary Go
	// arrays standing in for page-table frames.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}

	// zeroPageFn clears a freshly allocated page-table frame. Tests
	// override it, since the real implementation writes through a raw
	// address that is only valid once the kernel's own mappings are live.
	zeroPageFn = func(addr uintptr) {
		mem.Memset(addr, 0, uintptr(mem.PageSize))
	}
)

// FrameAllocatorFn supplies a fresh physical frame for a newly created
// page-table level. It is a function rather than an interface so the PMM's
// bootstrap dummy allocator (which always fails) and its real allocator's
// method value can both be passed without an adapter type.
type FrameAllocatorFn func() (pmm.Frame, *kerror.Error)

// Mapper walks and mutates the page tables rooted at the CR3 value it
// captured at construction time, treating offset+physAddr as the virtual
// address at which physAddr is readable.
type Mapper struct {
	offset   uintptr
	pml4Phys uintptr
}

// NewMapper returns a Mapper over the currently active PML4, addressed
// through offset.
func NewMapper(offset uintptr) *Mapper {
	return &Mapper{offset: offset, pml4Phys: activeCR3Fn()}
}

// MapperFlush is returned by every operation that mutates a leaf entry. The
// mapping is only guaranteed live on this CPU once Flush has been called.
type MapperFlush struct {
	vaddr uintptr
}

// Flush invalidates the TLB entry for the mapping this handle was returned
// for.
func (f *MapperFlush) Flush() {
	flushTLBEntryFn(f.vaddr)
}

func index(virtAddr uintptr, level uint8) uintptr {
	return (virtAddr >> pageLevelShifts[level]) & ((uintptr(1) << pageLevelBits[level]) - 1)
}

// walkTo descends from the PML4 to leafLevel, calling fn once per level
// with the entry at that level. It is used by operations that already know
// which level they intend to mutate (MapTo): the caller decides via flags
// whether the leaf is a PD-level huge page or a PT-level 4 KiB page.
func (m *Mapper) walkTo(virtAddr uintptr, leafLevel uint8, fn func(level uint8, pte *pageTableEntry) bool) {
	tableAddr := m.offset + m.pml4Phys
	for level := uint8(0); level <= leafLevel; level++ {
		pte := (*pageTableEntry)(ptePtrFn(tableAddr + index(virtAddr, level)*8))
		if !fn(level, pte) {
			return
		}
		if level == leafLevel {
			return
		}
		tableAddr = m.offset + uintptr(pte.Frame().Address())
	}
}

// walkAuto descends from the PML4 until it reaches a PT-level entry or a
// present PD-level entry with FlagHugePage set, whichever comes first. It
// is used by operations that must discover the mapping's granularity
// (Unmap, Translate) rather than dictate it.
func (m *Mapper) walkAuto(virtAddr uintptr, fn func(level uint8, pte *pageTableEntry) bool) {
	tableAddr := m.offset + m.pml4Phys
	for level := uint8(0); level < pageLevels; level++ {
		pte := (*pageTableEntry)(ptePtrFn(tableAddr + index(virtAddr, level)*8))
		if !fn(level, pte) {
			return
		}
		if level == ptLevel {
			return
		}
		if level == pdLevel && pte.HasFlags(FlagHugePage) {
			return
		}
		tableAddr = m.offset + uintptr(pte.Frame().Address())
	}
}

// MapTo installs a mapping from page to frame with the given flags,
// creating any missing PDPT/PD/PT levels along the way. Flags with
// FlagHugePage set place the leaf at the PD level (a 2 MiB mapping);
// otherwise the leaf is at the PT level (4 KiB). Missing intermediate
// levels consume one frame each from alloc.
func (m *Mapper) MapTo(page Page, frame pmm.Frame, flags PageTableEntryFlag, alloc FrameAllocatorFn) (*MapperFlush, *kerror.Error) {
	leafLevel := uint8(ptLevel)
	if flags.HasFlags(FlagHugePage) {
		leafLevel = pdLevel
	}

	var resultErr *kerror.Error
	m.walkTo(uintptr(page.Address()), leafLevel, func(level uint8, pte *pageTableEntry) bool {
		if level == leafLevel {
			if pte.HasFlags(FlagPresent) {
				resultErr = ErrPageAlreadyMapped
				return false
			}
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			resultErr = ErrParentEntryHugePage
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			newFrame, err := alloc()
			if err != nil {
				resultErr = ErrFrameAllocationFailed
				return false
			}
			*pte = 0
			pte.SetFrame(newFrame)
			pte.SetFlags(FlagPresent | FlagRW)
			zeroPageFn(m.offset + uintptr(newFrame.Address()))
		}
		return true
	})

	if resultErr != nil {
		return nil, resultErr
	}
	return &MapperFlush{vaddr: uintptr(page.Address())}, nil
}

// IdentityMap maps frame to the page with the same address, i.e.
// page.Address() == uintptr(frame.Address()).
func (m *Mapper) IdentityMap(frame pmm.Frame, flags PageTableEntryFlag, alloc FrameAllocatorFn) (*MapperFlush, *kerror.Error) {
	return m.MapTo(PageFromAddress(mem.VirtAddr(frame.Address())), frame, flags, alloc)
}

// Unmap clears page's leaf entry, whatever level it was installed at, and
// returns the frame it used to point to.
func (m *Mapper) Unmap(page Page) (pmm.Frame, *MapperFlush, *kerror.Error) {
	frame := pmm.InvalidFrame
	resultErr := ErrInvalidMapping

	m.walkAuto(uintptr(page.Address()), func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}
		if level == ptLevel || pte.HasFlags(FlagHugePage) {
			frame = pte.Frame()
			pte.ClearFlags(FlagPresent)
			resultErr = nil
			return false
		}
		return true
	})

	if resultErr != nil {
		return pmm.InvalidFrame, nil, resultErr
	}
	return frame, &MapperFlush{vaddr: uintptr(page.Address())}, nil
}

// Translate returns the physical address vaddr currently maps to, or
// ErrInvalidMapping if it maps to nothing.
func (m *Mapper) Translate(vaddr mem.VirtAddr) (mem.PhysAddr, *kerror.Error) {
	var (
		frame     = pmm.InvalidFrame
		leafLevel uint8
		resultErr = ErrInvalidMapping
	)

	m.walkAuto(uintptr(vaddr), func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}
		if level == ptLevel || pte.HasFlags(FlagHugePage) {
			frame = pte.Frame()
			leafLevel = level
			resultErr = nil
			return false
		}
		return true
	})

	if resultErr != nil {
		return 0, resultErr
	}

	pageSize := uintptr(mem.PageSize)
	if leafLevel == pdLevel {
		pageSize = uintptr(mem.HugePageSize)
	}
	offset := uintptr(vaddr) & (pageSize - 1)
	return mem.PhysAddr(uintptr(frame.Address()) + offset), nil
}
