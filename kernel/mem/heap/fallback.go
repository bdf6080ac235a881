package heap

import "unsafe"

// freeBlock is both the header of a free region and, while on the free
// list, the storage for its own linkage: the first bytes of a free block
// hold its size and the address of the next free block, address-ordered
// so adjacent frees can be coalesced.
type freeBlock struct {
	size uintptr
	next *freeBlock
}

// fallbackHeap is a first-fit linked-list allocator over a single
// contiguous byte range, grounded on the linked_list_allocator crate used
// by original_source's allocator/pool.rs as the pool allocator's overflow
// path. It serves requests too large for any size class and seeds each
// size class's free list the first time that class is used.
type fallbackHeap struct {
	head *freeBlock
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// init seeds the fallback heap with a single free block spanning
// [start, end).
func (f *fallbackHeap) init(start, end uintptr) {
	block := (*freeBlock)(unsafe.Pointer(start))
	block.size = end - start
	block.next = nil
	f.head = block
}

// alloc returns the address of a free region of at least size bytes
// aligned to align, or 0 if no free block is large enough. The part of
// the chosen block that the allocation doesn't use is returned to the
// free list immediately, split off the front and/or back; a leftover
// piece smaller than a freeBlock header is not put back.
func (f *fallbackHeap) alloc(size, align uintptr) uintptr {
	const headerSize = unsafe.Sizeof(freeBlock{})

	var prev *freeBlock
	for cur := f.head; cur != nil; cur = cur.next {
		curAddr := uintptr(unsafe.Pointer(cur))
		allocStart := alignUp(curAddr, align)
		allocEnd := allocStart + size
		blockEnd := curAddr + cur.size

		if allocEnd > blockEnd {
			prev = cur
			continue
		}

		next := cur.next
		if prev == nil {
			f.head = next
		} else {
			prev.next = next
		}

		if frontSize := allocStart - curAddr; frontSize >= headerSize {
			front := (*freeBlock)(unsafe.Pointer(curAddr))
			front.size = frontSize
			f.insert(front)
		}
		if backSize := blockEnd - allocEnd; backSize >= headerSize {
			back := (*freeBlock)(unsafe.Pointer(allocEnd))
			back.size = backSize
			f.insert(back)
		}

		return allocStart
	}

	return 0
}

// free returns a previously allocated region to the free list, coalescing
// it with any adjacent free neighbors.
func (f *fallbackHeap) free(ptr, size uintptr) {
	block := (*freeBlock)(unsafe.Pointer(ptr))
	block.size = size
	f.insert(block)
}

// insert places block into the address-ordered free list, merging it with
// its predecessor and/or successor when they are adjacent in memory.
func (f *fallbackHeap) insert(block *freeBlock) {
	blockAddr := uintptr(unsafe.Pointer(block))

	var prev *freeBlock
	cur := f.head
	for cur != nil && uintptr(unsafe.Pointer(cur)) < blockAddr {
		prev = cur
		cur = cur.next
	}

	if cur != nil && blockAddr+block.size == uintptr(unsafe.Pointer(cur)) {
		block.size += cur.size
		block.next = cur.next
	} else {
		block.next = cur
	}

	switch {
	case prev != nil && uintptr(unsafe.Pointer(prev))+prev.size == blockAddr:
		prev.size += block.size
		prev.next = block.next
	case prev != nil:
		prev.next = block
	default:
		f.head = block
	}
}
