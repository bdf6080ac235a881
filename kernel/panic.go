// Package kernel wires the memory-management core's subsystems together at
// boot time and hosts the last-resort panic path every other package's
// unrecoverable errors eventually reach.
package kernel

import (
	"nucleus/kernel/cpu"
	"nucleus/kernel/kerror"
	"nucleus/kernel/kfmt/early"
)

// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
var cpuHaltFn = cpu.Halt

var errRuntimePanic = &kerror.Error{Module: "rt", Message: "unknown cause"}

// Panic prints the supplied error to the console and halts the CPU. It
// never returns. e may be a *kerror.Error, a string or an error, in which
// case a descriptive line is printed first; any other value (including
// nil) is reported with just the halt banner.
func Panic(e interface{}) {
	var err *kerror.Error

	switch t := e.(type) {
	case *kerror.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
