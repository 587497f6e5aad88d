// Package sse implements the text event-stream frame grammar used between
// the upstream AI executor and the client: one or more "field: value" lines
// terminated by a blank line.
package sse

import (
	"bytes"
	"strings"
)

// DefaultEventType is assumed when a frame carries no event field
const DefaultEventType = "message"

// Event is one parsed frame
type Event struct {
	Type string
	Data string
}

// Parser decodes frames from arbitrary byte chunks. Chunk boundaries may
// fall anywhere, including inside a field line, inside the blank-line
// terminator, or inside a multi-byte UTF-8 sequence; partial input stays
// buffered until the terminator arrives. One Parser per stream.
type Parser struct {
	buf []byte
}

// NewParser creates a parser with an empty buffer
func NewParser() *Parser {
	return &Parser{buf: make([]byte, 0, 512)}
}

// Feed appends a chunk to the buffer and returns every event whose frame is
// fully terminated within the cumulative input, in order. An empty chunk is
// a no-op. A trailing unterminated frame is retained for the next call and
// is never emitted on its own.
func (p *Parser) Feed(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		frame, rest, ok := nextFrame(p.buf)
		if !ok {
			break
		}
		p.buf = rest
		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Pending reports how many buffered bytes are waiting for a terminator.
// A non-zero value at end of stream means the final frame was malformed
// and has been discarded from the parsed view.
func (p *Parser) Pending() int {
	return len(p.buf)
}

// nextFrame splits the first terminated frame off buf. A frame ends at the
// first blank line; \n and \r\n endings may be mixed within one frame, so
// the terminator is any line break followed directly by another.
func nextFrame(buf []byte) (frame, rest []byte, ok bool) {
	for i := 0; i < len(buf); i++ {
		off := bytes.IndexByte(buf[i:], '\n')
		if off < 0 {
			return nil, nil, false
		}
		i += off

		tail := buf[i+1:]
		switch {
		case len(tail) > 0 && tail[0] == '\n':
			return buf[:i], buf[i+2:], true
		case len(tail) > 1 && tail[0] == '\r' && tail[1] == '\n':
			return buf[:i], buf[i+3:], true
		}
	}
	return nil, nil, false
}

// parseFrame interprets the field lines of one frame. Unknown fields and
// comment lines are skipped; multiple data lines concatenate with \n.
// Frames with no recognized fields produce nothing.
func parseFrame(frame []byte) (Event, bool) {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)

	for _, line := range bytes.Split(frame, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			eventType = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}

	if eventType == "" && !hasData {
		return Event{}, false
	}
	if eventType == "" {
		eventType = DefaultEventType
	}
	return Event{Type: eventType, Data: data.String()}, true
}

// splitField separates "field: value", stripping exactly one optional space
// after the colon. Payload whitespace beyond that is significant and kept.
func splitField(line []byte) (field, value string) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return string(line), ""
	}
	field = string(line[:idx])
	rest := line[idx+1:]
	if len(rest) > 0 && rest[0] == ' ' {
		rest = rest[1:]
	}
	return field, string(rest)
}
