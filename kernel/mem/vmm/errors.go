package vmm

import "nucleus/kernel/kerror"

var (
	// ErrFrameAllocationFailed is returned when a mapping operation needs
	// a fresh page-table frame and the supplied allocator has none left.
	ErrFrameAllocationFailed = &kerror.Error{Module: "vmm", Message: "frame allocation failed while creating a page table"}

	// ErrPageAlreadyMapped is returned by MapTo when the target page's
	// leaf entry is already present.
	ErrPageAlreadyMapped = &kerror.Error{Module: "vmm", Message: "page is already mapped"}

	// ErrParentEntryHugePage is returned when a walk expects to descend
	// through an intermediate level but finds a huge-page leaf there
	// instead.
	ErrParentEntryHugePage = &kerror.Error{Module: "vmm", Message: "parent entry is a huge page"}

	// ErrInvalidMapping is returned by Unmap/Translate when the page is
	// not currently mapped.
	ErrInvalidMapping = &kerror.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)
