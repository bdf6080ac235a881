// Package heap implements the kernel's dynamic memory allocator: a
// segregated-free-list pool over fixed size classes backed by a first-fit
// linked-list heap for overflow, spin-locked for the single shared global
// instance (spec.md §4.6). It is grounded on original_source's
// allocator/pool.rs, which layers the same pool-over-fallback design atop
// the linked_list_allocator crate; the teacher repo has no heap allocator
// of its own to generalize, so the fallback in fallback.go is written from
// scratch in the teacher's general style (package-level indirection for
// what would otherwise be privileged state, spin-lock-guarded mutation).
package heap

import (
	"unsafe"

	"nucleus/kernel/kerror"
	"nucleus/kernel/sync"
)

// blockSizes are the pool's fixed size classes. A request of (size, align)
// is served by the smallest class able to hold max(size, align); the
// smallest class doubles as the minimum allocation granularity, so it must
// be at least as large as a listNode.
var blockSizes = [...]uintptr{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// listNode is the free-list linkage a pooled block carries while it is
// not allocated: its own leading bytes double as the next pointer.
type listNode struct {
	next *listNode
}

// ErrOutOfMemory describes the condition where neither a size class's free
// list nor the fallback heap can satisfy a request. Alloc reports that
// condition by returning 0; no function in this package returns this value.
var ErrOutOfMemory = &kerror.Error{Module: "heap", Message: "heap exhausted: no block large enough for the request"}

// Heap is the kernel's dynamic memory allocator. The zero value is not
// usable; call Init before any Alloc/Free.
type Heap struct {
	lock     sync.Spinlock
	buckets  [len(blockSizes)]*listNode
	fallback fallbackHeap
}

// Init prepares h to serve allocations from [start, end).
func (h *Heap) Init(start, end uintptr) {
	h.fallback.init(start, end)
}

// classFor returns the index of the smallest size class able to hold an
// allocation of the given size and alignment, or false if no class is big
// enough and the request must go straight to the fallback.
func classFor(size, align uintptr) (int, bool) {
	required := size
	if align > required {
		required = align
	}
	for i, s := range blockSizes {
		if s >= required {
			return i, true
		}
	}
	return 0, false
}

// Alloc returns the address of a free region of at least size bytes
// aligned to align, or 0 if the heap has nothing large enough left. The
// returned address is always aligned to at least the matched size class,
// which is itself at least align.
func (h *Heap) Alloc(size, align uintptr) uintptr {
	h.lock.Acquire()
	defer h.lock.Release()

	idx, pooled := classFor(size, align)
	if !pooled {
		return h.fallback.alloc(size, align)
	}

	if node := h.buckets[idx]; node != nil {
		h.buckets[idx] = node.next
		return uintptr(unsafe.Pointer(node))
	}

	blockSize := blockSizes[idx]
	return h.fallback.alloc(blockSize, blockSize)
}

// Free returns a block previously obtained from Alloc with the same size
// and align arguments. Passing mismatched size/align, a pointer Alloc
// never returned, or freeing the same pointer twice corrupts the
// allocator; the caller is responsible for honoring this contract.
func (h *Heap) Free(ptr, size, align uintptr) {
	h.lock.Acquire()
	defer h.lock.Release()

	idx, pooled := classFor(size, align)
	if !pooled {
		h.fallback.free(ptr, size)
		return
	}

	node := (*listNode)(unsafe.Pointer(ptr))
	node.next = h.buckets[idx]
	h.buckets[idx] = node
}
