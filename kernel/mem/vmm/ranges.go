package vmm

import (
	"nucleus/kernel/kerror"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

// pagesPerEntry returns how many Page/Frame index units a single mapping
// covers: 1 for a 4 KiB entry, 512 for a 2 MiB (huge) entry.
func pagesPerEntry(flags PageTableEntryFlag) uintptr {
	if flags.HasFlags(FlagHugePage) {
		return uintptr(mem.HugePageSize / mem.PageSize)
	}
	return 1
}

// MapRange maps count consecutive pages starting at startPage to count
// consecutive frames starting at startFrame, flushing each entry as it is
// installed.
func (m *Mapper) MapRange(startPage Page, startFrame pmm.Frame, count int, flags PageTableEntryFlag, alloc FrameAllocatorFn) *kerror.Error {
	step := pagesPerEntry(flags)
	for i := 0; i < count; i++ {
		page := startPage + Page(uintptr(i)*step)
		frame := startFrame + pmm.Frame(uintptr(i)*step)
		flush, err := m.MapTo(page, frame, flags, alloc)
		if err != nil {
			return err
		}
		flush.Flush()
	}
	return nil
}

// IdentityMapRange identity-maps count consecutive frames starting at
// startFrame.
func (m *Mapper) IdentityMapRange(startFrame pmm.Frame, count int, flags PageTableEntryFlag, alloc FrameAllocatorFn) *kerror.Error {
	step := pagesPerEntry(flags)
	for i := 0; i < count; i++ {
		frame := startFrame + pmm.Frame(uintptr(i)*step)
		flush, err := m.IdentityMap(frame, flags, alloc)
		if err != nil {
			return err
		}
		flush.Flush()
	}
	return nil
}

// UnmapRange unmaps count consecutive 4 KiB pages starting at startPage.
func (m *Mapper) UnmapRange(startPage Page, count int) *kerror.Error {
	for i := 0; i < count; i++ {
		_, flush, err := m.Unmap(startPage + Page(i))
		if err != nil {
			return err
		}
		flush.Flush()
	}
	return nil
}

// AllocateRange maps count consecutive pages starting at startPage to
// freshly allocated frames obtained from alloc.
func (m *Mapper) AllocateRange(startPage Page, count int, flags PageTableEntryFlag, alloc FrameAllocatorFn) *kerror.Error {
	step := pagesPerEntry(flags)
	for i := 0; i < count; i++ {
		frame, allocErr := alloc()
		if allocErr != nil {
			return ErrFrameAllocationFailed
		}
		page := startPage + Page(uintptr(i)*step)
		flush, err := m.MapTo(page, frame, flags, alloc)
		if err != nil {
			return err
		}
		flush.Flush()
	}
	return nil
}
