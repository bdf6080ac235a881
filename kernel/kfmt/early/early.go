// Package early provides a Printf/Fprintf pair that is always safe to call,
// from the first instruction after the boot trampoline hands off to Go
// through to steady-state operation. It exists because kernel/kfmt needs an
// io.Writer to write to, and the only writer guaranteed to be live before
// kernel/mem/bringup finishes is the serial console; early wraps that writer
// behind a swappable package-level sink so panic paths and tests can
// redirect it without introducing a dependency cycle between kfmt and the
// serial driver.
package early

import (
	"io"

	"nucleus/kernel/kfmt"
)

// sink is the writer early.Printf writes to. It defaults to io.Discard so
// that importing the package never panics on a nil writer; kernel.Kmain
// calls SetOutputSink once the serial console is attached.
var sink io.Writer = io.Discard

// SetOutputSink redirects subsequent Printf/Fprintf calls to w. Passing nil
// restores the discard sink.
func SetOutputSink(w io.Writer) {
	if w == nil {
		sink = io.Discard
		return
	}
	sink = w
}

// OutputSink returns the writer currently in use.
func OutputSink() io.Writer {
	return sink
}

// Printf formats according to format and writes to the active sink.
func Printf(format string, args ...interface{}) {
	kfmt.Fprintf(sink, format, args...)
}

// Fprintf formats according to format and writes to w, bypassing the
// package sink. It is exposed so callers that already hold a specific
// writer (e.g. a panic handler writing directly to the serial port) do not
// have to go through SetOutputSink/Printf.
func Fprintf(w io.Writer, format string, args ...interface{}) (int, error) {
	return kfmt.Fprintf(w, format, args...)
}
