package sse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(p *Parser, chunks ...[]byte) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, p.Feed(c)...)
	}
	return events
}

func TestParserSingleFrame(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: text-delta\ndata: Hello\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "text-delta", events[0].Type)
	assert.Equal(t, "Hello", events[0].Data)
	assert.Equal(t, 0, p.Pending())
}

func TestParserDefaultEventType(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("data: hi\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, DefaultEventType, events[0].Type)
	assert.Equal(t, "hi", events[0].Data)
}

func TestParserMultipleDataLines(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: message\ndata: line one\ndata: line two\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", events[0].Data)
}

func TestParserPreservesPayloadWhitespace(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: text-delta\ndata: Hello \n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "Hello ", events[0].Data)
}

func TestParserCRLFTerminator(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: done\r\ndata: \r\n\r\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Type)
	assert.Equal(t, "", events[0].Data)
}

func TestParserMixedLineEndings(t *testing.T) {
	// a bare-LF field line followed by a CRLF blank line still terminates,
	// and vice versa
	p := NewParser()
	events := p.Feed([]byte("event: text-delta\ndata: Hi\n\r\nevent: done\r\ndata: \r\n\n"))
	require.Len(t, events, 2)
	assert.Equal(t, Event{"text-delta", "Hi"}, events[0])
	assert.Equal(t, Event{"done", ""}, events[1])
	assert.Equal(t, 0, p.Pending())
}

func TestParserIgnoresCommentsAndUnknownFields(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte(": keepalive\nid: 42\nretry: 100\nevent: ping\ndata: x\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "ping", events[0].Type)
	assert.Equal(t, "x", events[0].Data)
}

func TestParserEmptyChunkIsNoop(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed(nil))
	assert.Empty(t, p.Feed([]byte{}))
	assert.Equal(t, 0, p.Pending())
}

func TestParserTrailingPartialFrameDiscarded(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: text-delta\ndata: complete\n\nevent: text-delta\ndata: trunca"))
	require.Len(t, events, 1)
	assert.Equal(t, "complete", events[0].Data)
	// the partial frame stays buffered and is never emitted
	assert.Greater(t, p.Pending(), 0)
	assert.Empty(t, p.Feed([]byte("")))
}

func TestParserBoundaryInsideTerminator(t *testing.T) {
	p := NewParser()
	events := feedAll(p,
		[]byte("event: done\ndata: \n"),
		[]byte("\n"),
	)
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Type)
}

func TestParserBoundaryInsideMultiByteRune(t *testing.T) {
	raw := []byte("event: text-delta\ndata: héllo\n\n")
	// split in the middle of the two-byte é sequence
	idx := bytes.IndexByte(raw, 0xc3)
	p := NewParser()
	events := feedAll(p, raw[:idx+1], raw[idx+1:])
	require.Len(t, events, 1)
	assert.Equal(t, "héllo", events[0].Data)
}

func TestParserChunkSplitIdempotence(t *testing.T) {
	raw := []byte("event: text-delta\ndata: Hello \n\n" +
		"event: tool-execution\ndata: {\"name\":\"search\"}\n\n" +
		"data: plain\n\n" +
		"event: done\ndata: \n\n")

	whole := NewParser().Feed(raw)
	require.Len(t, whole, 4)

	for i := 1; i < len(raw); i++ {
		p := NewParser()
		split := feedAll(p, raw[:i], raw[i:])
		assert.Equalf(t, whole, split, "split at byte %d diverged", i)
		assert.Equal(t, 0, p.Pending())
	}
}

func TestParserNoEventLossAcrossManyBoundaries(t *testing.T) {
	raw := []byte("event: a\ndata: 1\n\nevent: b\ndata: 2\n\nevent: c\ndata: 3\n\nevent: d\ndata: 4\n\n")
	p := NewParser()
	var events []Event
	// feed one byte at a time, the most hostile chunking possible
	for _, b := range raw {
		events = append(events, p.Feed([]byte{b})...)
	}
	require.Len(t, events, 4)
	for i, want := range []Event{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}} {
		assert.Equal(t, want, events[i])
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	require.NoError(t, w.WriteEvent("text-delta", "Hello"))
	require.NoError(t, w.WriteEvent("message", "two\nlines"))

	events := NewParser().Feed(buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, Event{"text-delta", "Hello"}, events[0])
	assert.Equal(t, Event{"message", "two\nlines"}, events[1])
}

func TestWriterErrorFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, nil).WriteError("upstream unavailable"))

	events := NewParser().Feed(buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
	assert.Contains(t, events[0].Data, "upstream unavailable")
}
