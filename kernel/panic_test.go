package kernel

import (
	"bytes"
	"testing"

	"nucleus/kernel/kerror"
	"nucleus/kernel/kfmt/early"
)

func TestPanic(t *testing.T) {
	defer func() { cpuHaltFn = func() {} }()

	var haltCalled bool
	cpuHaltFn = func() { haltCalled = true }

	t.Run("with error", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		early.SetOutputSink(&buf)
		defer early.SetOutputSink(nil)

		Panic(&kerror.Error{Module: "test", Message: "panic test"})

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		early.SetOutputSink(&buf)
		defer early.SetOutputSink(nil)

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected:\n%q\ngot:\n%q", exp, got)
		}
		if !haltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("with plain error value", func(t *testing.T) {
		haltCalled = false
		var buf bytes.Buffer
		early.SetOutputSink(&buf)
		defer early.SetOutputSink(nil)

		Panic(errBoom)

		exp := "\n-----------------------------------\n[rt] unrecoverable error: boom\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got := buf.String(); got != exp {
			t.Fatalf("expected:\n%q\ngot:\n%q", exp, got)
		}
	})
}

type testError struct{ msg string }

func (e testError) Error() string { return e.msg }

var errBoom = testError{"boom"}
