package heap

import (
	"testing"
	"unsafe"
)

func newTestHeap(t *testing.T, size uintptr) (*Heap, []byte) {
	t.Helper()
	backing := make([]byte, size)
	var h Heap
	start := uintptr(unsafe.Pointer(&backing[0]))
	h.Init(start, start+size)
	return &h, backing
}

func TestAllocReturnsAlignedDisjointPointers(t *testing.T) {
	h, _ := newTestHeap(t, 1<<20)

	type span struct{ start, end uintptr }
	var live []span
	for _, spec := range []struct{ size, align uintptr }{
		{16, 16}, {8, 8}, {64, 32}, {4000, 8}, {1, 1}, {256, 256},
	} {
		ptr := h.Alloc(spec.size, spec.align)
		if ptr == 0 {
			t.Fatalf("Alloc(%d, %d) returned 0", spec.size, spec.align)
		}
		if ptr%spec.align != 0 {
			t.Errorf("Alloc(%d, %d) = %#x, not aligned to %d", spec.size, spec.align, ptr, spec.align)
		}
		for _, s := range live {
			if ptr < s.end && s.start < ptr+spec.size {
				t.Errorf("Alloc(%d, %d) = %#x overlaps live allocation [%#x, %#x)", spec.size, spec.align, ptr, s.start, s.end)
			}
		}
		live = append(live, span{ptr, ptr + spec.size})
	}
}

func TestAllocDeallocAllocReusesPointer(t *testing.T) {
	h, _ := newTestHeap(t, 1<<16)

	first := h.Alloc(16, 16)
	if first == 0 {
		t.Fatal("first Alloc returned 0")
	}
	h.Free(first, 16, 16)

	second := h.Alloc(16, 16)
	if second != first {
		t.Fatalf("expected LIFO reuse of freed block %#x; got %#x", first, second)
	}
}

func TestAllocFreeCycleOfManyBlocks(t *testing.T) {
	h, _ := newTestHeap(t, 1<<20)

	const n = 1000
	var first [n]uintptr
	for i := 0; i < n; i++ {
		first[i] = h.Alloc(64, 8)
		if first[i] == 0 {
			t.Fatalf("Alloc #%d returned 0", i)
		}
	}
	for i := 0; i < n; i++ {
		h.Free(first[i], 64, 8)
	}

	seen := make(map[uintptr]bool, n)
	for i := 0; i < n; i++ {
		seen[first[i]] = true
	}

	for i := 0; i < n; i++ {
		ptr := h.Alloc(64, 8)
		if !seen[ptr] {
			t.Fatalf("Alloc #%d after freeing the batch returned %#x, not in the original set", i, ptr)
		}
	}
}

func TestAllocFallsBackForOversizeRequest(t *testing.T) {
	h, _ := newTestHeap(t, 1<<20)

	pooled := h.Alloc(16, 16)
	if pooled == 0 {
		t.Fatal("pooled Alloc returned 0")
	}

	big := h.Alloc(8192, 8)
	if big == 0 {
		t.Fatal("fallback Alloc(8192) returned 0")
	}
	if big < pooled+16 && pooled < big+8192 {
		t.Fatal("fallback allocation overlapped a pooled allocation")
	}
}

func TestAllocFailsWhenExhausted(t *testing.T) {
	h, _ := newTestHeap(t, 256)

	var last uintptr
	for i := 0; i < 100; i++ {
		ptr := h.Alloc(64, 8)
		if ptr == 0 {
			return
		}
		last = ptr
	}
	t.Fatalf("expected Alloc to eventually fail on a 256-byte heap; last returned %#x", last)
}

func TestClassFor(t *testing.T) {
	specs := []struct {
		size, align uintptr
		wantIdx     int
		wantPooled  bool
	}{
		{1, 1, 0, true},
		{8, 1, 0, true},
		{9, 1, 1, true},
		{16, 16, 1, true},
		{4096, 1, 9, true},
		{4097, 1, 0, false},
		{1, 8192, 0, false},
	}

	for _, spec := range specs {
		idx, pooled := classFor(spec.size, spec.align)
		if pooled != spec.wantPooled {
			t.Errorf("classFor(%d, %d) pooled = %v; want %v", spec.size, spec.align, pooled, spec.wantPooled)
			continue
		}
		if pooled && idx != spec.wantIdx {
			t.Errorf("classFor(%d, %d) idx = %d; want %d", spec.size, spec.align, idx, spec.wantIdx)
		}
	}
}
