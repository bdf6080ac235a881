package vmm

import "nucleus/kernel/mem"

// Page identifies a virtual memory page by its index: page p covers
// [p*PageSize, p*PageSize+PageSize).
type Page uintptr

// Address returns the virtual address of the first byte of p.
func (p Page) Address() mem.VirtAddr {
	return mem.VirtAddr(uintptr(p) << mem.PageShift)
}

// PageFromAddress returns the page containing addr, rounding down if addr
// is not page-aligned.
func PageFromAddress(addr mem.VirtAddr) Page {
	return Page(uintptr(addr) >> mem.PageShift)
}
