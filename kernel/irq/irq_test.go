package irq

import (
	"bytes"
	"testing"
	"unsafe"
)

func uintptrOf[T any](v *T) uintptr {
	return uintptr(unsafe.Pointer(v))
}

func TestHandleExceptionDispatch(t *testing.T) {
	var gotFrame *Frame
	var gotRegs *Regs

	HandleException(Breakpoint, func(frame *Frame, regs *Regs) {
		gotFrame = frame
		gotRegs = regs
	})
	defer func() { handlers[Breakpoint] = nil }()

	frame := Frame{RIP: 0xdead}
	regs := Regs{RAX: 0xbeef}

	dispatch(uint64(Breakpoint), 0, uintptrOf(&frame), uintptrOf(&regs))

	if gotFrame == nil || gotFrame.RIP != 0xdead {
		t.Fatalf("expected handler to receive frame with RIP=0xdead; got %+v", gotFrame)
	}
	if gotRegs == nil || gotRegs.RAX != 0xbeef {
		t.Fatalf("expected handler to receive regs with RAX=0xbeef; got %+v", gotRegs)
	}
}

func TestHandleExceptionWithCodeDispatch(t *testing.T) {
	var gotCode uint64

	HandleExceptionWithCode(GeneralProtectionFault, func(errCode uint64, _ *Frame, _ *Regs) {
		gotCode = errCode
	})
	defer func() { handlersWithCode[GeneralProtectionFault] = nil }()

	frame := Frame{}
	regs := Regs{}
	dispatch(uint64(GeneralProtectionFault), 42, uintptrOf(&frame), uintptrOf(&regs))

	if gotCode != 42 {
		t.Fatalf("expected error code 42; got %d", gotCode)
	}
}

func TestRenderException(t *testing.T) {
	// GeneralProtectionFault and PageFault additionally read CR2, a
	// privileged register this package has no mock indirection for, so
	// only the vectors rendered without it (#BP, #DE, #DF) are exercised
	// here.
	frame := &Frame{RIP: 0x1000}

	var buf bytes.Buffer
	RenderException(&buf, Breakpoint, 0, frame)
	if want := "(#BP, 0x03) @ rip=1000\n"; buf.String() != want {
		t.Fatalf("RenderException(Breakpoint) = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	RenderException(&buf, DivisionError, 0, frame)
	if want := "(#DE, 0x00) @ rip=1000\n"; buf.String() != want {
		t.Fatalf("RenderException(DivisionError) = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	RenderException(&buf, DoubleFault, 7, frame)
	if want := "(#DF, 0x08) @ rip=1000, E=7\n"; buf.String() != want {
		t.Fatalf("RenderException(DoubleFault) = %q, want %q", buf.String(), want)
	}
}

func TestMnemonic(t *testing.T) {
	specs := []struct {
		num ExceptionNum
		exp string
	}{
		{DivisionError, "DE"},
		{Breakpoint, "BP"},
		{DoubleFault, "DF"},
		{GeneralProtectionFault, "GP"},
		{PageFault, "PF"},
		{ExceptionNum(31), "??"},
	}

	for _, spec := range specs {
		if got := spec.num.mnemonic(); got != spec.exp {
			t.Errorf("mnemonic(%d) = %q; want %q", spec.num, got, spec.exp)
		}
	}
}
