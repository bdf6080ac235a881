package early

import (
	"bytes"
	"testing"
)

func TestPrintfUsesActiveSink(t *testing.T) {
	defer SetOutputSink(nil)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	Printf("boot: %d frames free", 128)

	if got, exp := buf.String(), "boot: 128 frames free"; got != exp {
		t.Errorf("expected %q; got %q", exp, got)
	}
}

func TestSetOutputSinkNilDiscards(t *testing.T) {
	SetOutputSink(nil)
	Printf("dropped on the floor")
	// No assertion beyond "does not panic": io.Discard swallows the write.
}
