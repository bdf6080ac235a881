// Package gdt builds the kernel's Global Descriptor Table and Task State
// Segment. Paging has made segmentation nearly irrelevant, but long mode
// still requires a GDT with a 64-bit code segment, and a TSS is still the
// only way to point the CPU at an alternate stack when it takes an
// interrupt on a corrupted one (the IST mechanism used for #DF).
package gdt

import (
	"unsafe"

	"nucleus/kernel/config"
)

// Selector indexes one of the segments installed by Init. Values are
// pre-shifted descriptor-table offsets (index*8), ready to load directly
// into a segment register.
type Selector uint16

const (
	// NullSelector occupies GDT entry 0, as x86 requires.
	NullSelector Selector = 0 * 8

	// CodeSelector is the 64-bit kernel code segment.
	CodeSelector Selector = 1 * 8

	// DataSelector is the kernel data segment.
	DataSelector Selector = 2 * 8

	// TSSSelector is the Task State Segment descriptor. It occupies two
	// GDT slots because a TSS descriptor carries a 64-bit base address.
	TSSSelector Selector = 3 * 8
)

// DoubleFaultISTIndex is the interrupt-stack-table slot reserved for the
// double-fault handler; the idt package references it when installing the
// #DF gate. It is 0-based here and maps to TSS.IST1 in the encoded TSS.
const DoubleFaultISTIndex = 0

// doubleFaultStackSize is the size of the private stack #DF runs on. A
// stack overflow is one of the ways to trigger a double fault, so its
// handler cannot safely share the faulting task's stack.
const doubleFaultStackSize = config.StackSize / 8

// doubleFaultStack is the static backing store for the IST entry. Nothing
// but the TSS setup below and the CPU (via the IST mechanism) may touch it.
var doubleFaultStack [doubleFaultStackSize]byte

// entry is a plain (non-system) 8-byte GDT descriptor.
type entry struct {
	limitLow   uint16
	baseLow    uint16
	baseMid    uint8
	access     uint8
	flagsLimit uint8
	baseHigh   uint8
}

// tssDescriptor is the 16-byte GDT entry describing a 64-bit TSS: a
// regular 8-byte entry plus 8 bytes carrying the upper 32 bits of the base
// address.
type tssDescriptor struct {
	entry
	baseUpper uint32
	reserved  uint32
}

// taskStateSegment is the 64-bit Task State Segment. Only the IST slots
// matter here; this kernel never performs a hardware privilege-level
// switch, so RSP0-2 are left zero and the I/O permission bitmap is absent.
// 64-bit fields are stored as {low, high} uint32 pairs so the struct has
// the hardware's packed 104-byte layout (RSP0 at offset 4, IST1 at 36).
type taskStateSegment struct {
	reserved0 uint32
	rsp       [3][2]uint32
	reserved1 [2]uint32
	ist       [7][2]uint32
	reserved2 [2]uint32
	reserved3 uint16
	ioMapBase uint16
}

var (
	taskState tss

	table struct {
		null entry
		code entry
		data entry
		tss  tssDescriptor
	}
)

type tss = taskStateSegment

const (
	accessPresent  = 1 << 7
	accessRing0    = 0 << 5
	accessSegment  = 1 << 4 // code/data, not a system descriptor
	accessExec     = 1 << 3
	accessRW       = 1 << 1 // readable (code) / writable (data)
	flagLongMode   = 1 << 5
	accessTSSAvail = 0x9 // 64-bit TSS (available), system descriptor type
)

// Init builds the GDT and TSS, loads GDTR, reloads the data segment
// registers and loads the task register. It must run once, before idt.Init, since
// the IDT's #DF gate references the IST slot configured here.
func Init() {
	table.null = entry{}
	table.code = entry{
		access:     accessPresent | accessRing0 | accessSegment | accessExec | accessRW,
		flagsLimit: flagLongMode,
	}
	table.data = entry{
		access: accessPresent | accessRing0 | accessSegment | accessRW,
	}

	stackTop := uint64(uintptr(unsafe.Pointer(&doubleFaultStack[0]))) + doubleFaultStackSize
	taskState.ist[DoubleFaultISTIndex] = [2]uint32{uint32(stackTop), uint32(stackTop >> 32)}

	base := uint64(uintptr(unsafe.Pointer(&taskState)))
	limit := uint32(unsafe.Sizeof(taskState) - 1)
	table.tss = tssDescriptor{
		entry: entry{
			limitLow:   uint16(limit),
			baseLow:    uint16(base),
			baseMid:    uint8(base >> 16),
			access:     accessPresent | accessTSSAvail,
			flagsLimit: uint8(limit>>16) & 0x0F,
			baseHigh:   uint8(base >> 24),
		},
		baseUpper: uint32(base >> 32),
	}

	limitGDT := uint16(unsafe.Sizeof(table) - 1)
	load(unsafe.Pointer(&table), limitGDT, CodeSelector, DataSelector, TSSSelector)
}

// load installs the GDT via LGDT, loads DS/ES/FS/GS with the data
// selector and SS with the null selector, and loads the task register with
// LTR. CS is not reloaded: it keeps selector 0x08 from the boot
// trampoline's far jump, which indexes this table's code descriptor. It
// has no Go equivalent.
func load(table unsafe.Pointer, limit uint16, code, data, tr Selector)
