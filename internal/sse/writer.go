package sse

import (
	"fmt"
	"io"
	"strings"
)

// Flusher is the subset of http.Flusher the writer needs
type Flusher interface {
	Flush()
}

// Writer serializes frames back onto a stream, flushing after every frame
// so incremental consumers see events as they happen.
type Writer struct {
	w io.Writer
	f Flusher
}

// NewWriter wraps a sink. flusher may be nil when the sink does not
// support flushing (e.g. a buffer in tests).
func NewWriter(w io.Writer, f Flusher) *Writer {
	return &Writer{w: w, f: f}
}

// WriteEvent emits one frame. Multi-line data becomes one data line per
// payload line, per the frame grammar.
func (w *Writer) WriteEvent(eventType, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", eventType)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return err
	}
	if w.f != nil {
		w.f.Flush()
	}
	return nil
}

// WriteError emits a synthetic error frame with a JSON payload, used when
// a stream must be terminated after the client was already promised an
// event stream instead of a structured error body.
func (w *Writer) WriteError(message string) error {
	data := fmt.Sprintf(`{"error":%q}`, message)
	return w.WriteEvent("error", data)
}
