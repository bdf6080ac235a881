package vmm

import (
	"testing"
	"unsafe"

	"nucleus/kernel/kerror"
	"nucleus/kernel/mem"
	"nucleus/kernel/mem/pmm"
)

// fakeTables backs a handful of page-table frames with ordinary Go memory
// and answers ptePtrFn lookups by the pseudo-physical base address each
// table was registered under, so a Mapper can walk them without touching
// real memory. This plays the same role as the teacher's ptePtrFn override
// in kernel/mem/vmm/map_test.go, generalized to a registry since this
// package's walk is keyed by table base address rather than call order.
type fakeTables struct {
	tables map[uintptr]*[512]uint64
	next   uintptr
}

func newFakeTables() *fakeTables {
	return &fakeTables{tables: make(map[uintptr]*[512]uint64), next: 0x1000}
}

// alloc registers a new zeroed table and returns the pseudo-physical frame
// it lives at.
func (f *fakeTables) alloc() pmm.Frame {
	base := f.next
	f.next += uintptr(mem.PageSize)
	f.tables[base] = &[512]uint64{}
	return pmm.Frame(base >> mem.PageShift)
}

func (f *fakeTables) ptePtr(entryAddr uintptr) unsafe.Pointer {
	base := entryAddr &^ (uintptr(mem.PageSize) - 1)
	idx := (entryAddr - base) / 8
	table, ok := f.tables[base]
	if !ok {
		panic("mapper_test: access to unregistered table")
	}
	return unsafe.Pointer(&table[idx])
}

func (f *fakeTables) allocFn() FrameAllocatorFn {
	return func() (pmm.Frame, *kerror.Error) {
		return f.alloc(), nil
	}
}

func withFakeTables(t *testing.T) (*fakeTables, *Mapper) {
	t.Helper()
	ft := newFakeTables()
	pml4 := ft.alloc()

	origCR3, origFlush, origPte, origZero := activeCR3Fn, flushTLBEntryFn, ptePtrFn, zeroPageFn
	t.Cleanup(func() {
		activeCR3Fn, flushTLBEntryFn, ptePtrFn, zeroPageFn = origCR3, origFlush, origPte, origZero
	})

	activeCR3Fn = func() uintptr { return uintptr(pml4.Address()) }
	flushTLBEntryFn = func(uintptr) {}
	ptePtrFn = ft.ptePtr
	zeroPageFn = func(uintptr) {}

	return ft, NewMapper(0)
}

func TestMapToAndTranslate(t *testing.T) {
	ft, m := withFakeTables(t)

	page := PageFromAddress(0x0000_0040_0000_0000)
	dataFrame := ft.alloc()

	flush, err := m.MapTo(page, dataFrame, FlagPresent|FlagRW, ft.allocFn())
	if err != nil {
		t.Fatalf("MapTo: %v", err)
	}
	flush.Flush()

	for off := uintptr(0); off < uintptr(mem.PageSize); off += 512 {
		got, terr := m.Translate(mem.VirtAddr(page.Address()) + mem.VirtAddr(off))
		if terr != nil {
			t.Fatalf("Translate at offset %#x: %v", off, terr)
		}
		if want := mem.PhysAddr(uintptr(dataFrame.Address()) + off); got != want {
			t.Fatalf("Translate at offset %#x = %#x; want %#x", off, got, want)
		}
	}
}

func TestMapToRejectsDoubleMapping(t *testing.T) {
	ft, m := withFakeTables(t)

	page := PageFromAddress(0x0000_0040_0000_0000)
	frame := ft.alloc()

	if _, err := m.MapTo(page, frame, FlagPresent|FlagRW, ft.allocFn()); err != nil {
		t.Fatalf("first MapTo: %v", err)
	}
	if _, err := m.MapTo(page, frame, FlagPresent|FlagRW, ft.allocFn()); err != ErrPageAlreadyMapped {
		t.Fatalf("second MapTo error = %v; want ErrPageAlreadyMapped", err)
	}
}

func TestMapToThenUnmap(t *testing.T) {
	ft, m := withFakeTables(t)

	page := PageFromAddress(0x0000_0040_0000_0000)
	frame := ft.alloc()

	if _, err := m.MapTo(page, frame, FlagPresent|FlagRW, ft.allocFn()); err != nil {
		t.Fatalf("MapTo: %v", err)
	}

	freed, flush, err := m.Unmap(page)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	flush.Flush()
	if freed != frame {
		t.Fatalf("Unmap returned frame %d; want %d", freed, frame)
	}

	if _, err := m.Translate(mem.VirtAddr(page.Address())); err != ErrInvalidMapping {
		t.Fatalf("Translate after Unmap = %v; want ErrInvalidMapping", err)
	}
}

func TestMapToHugePage(t *testing.T) {
	ft, m := withFakeTables(t)

	hugePage := PageFromAddress(mem.VirtAddr(0x0000_0080_0000_0000))
	dataFrame := ft.alloc()

	if _, err := m.MapTo(hugePage, dataFrame, FlagPresent|FlagRW|FlagHugePage, ft.allocFn()); err != nil {
		t.Fatalf("MapTo: %v", err)
	}

	got, err := m.Translate(mem.VirtAddr(hugePage.Address()) + 0x1000)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if want := mem.PhysAddr(uintptr(dataFrame.Address()) + 0x1000); got != want {
		t.Fatalf("Translate = %#x; want %#x", got, want)
	}
}

func TestTranslateUnmapped(t *testing.T) {
	_, m := withFakeTables(t)

	if _, err := m.Translate(0x0000_0050_0000_0000); err != ErrInvalidMapping {
		t.Fatalf("Translate of unmapped address = %v; want ErrInvalidMapping", err)
	}
}
