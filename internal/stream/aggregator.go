// Package stream reduces the parsed event sequence of one relayed call into
// the final result that gets persisted as an assistant turn.
package stream

import (
	"encoding/json"

	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/internal/sse"
)

// EventTypes is the recognized event vocabulary. It is a contract with the
// upstream executor; callers may override individual names.
type EventTypes struct {
	TextDelta     string
	ToolExecution string
	Image         string
	Error         string
	Done          string
}

// DefaultEventTypes returns the vocabulary the upstream executor speaks today
func DefaultEventTypes() EventTypes {
	return EventTypes{
		TextDelta:     "text-delta",
		ToolExecution: "tool-execution",
		Image:         "image",
		Error:         "error",
		Done:          "done",
	}
}

// Result is the aggregated outcome of one stream
type Result struct {
	ResponseText   string
	ToolExecutions []models.ToolExecution
	Images         []models.ImageRef
	ErrorMessage   string
	Done           bool
}

// Failed reports whether the upstream signalled an error event mid-stream
func (r *Result) Failed() bool {
	return r.ErrorMessage != ""
}

// Aggregator folds events into a Result. One instance per relayed call;
// instances hold no shared state.
type Aggregator struct {
	types     EventTypes
	result    Result
	text      []byte
	skipped   int
	malformed int
}

// NewAggregator creates an aggregator with the default vocabulary
func NewAggregator() *Aggregator {
	return NewAggregatorWithTypes(DefaultEventTypes())
}

// NewAggregatorWithTypes creates an aggregator with a custom vocabulary
func NewAggregatorWithTypes(types EventTypes) *Aggregator {
	return &Aggregator{types: types}
}

// Add folds one event into the running state. Unrecognized event types and
// malformed structured payloads are counted and skipped; nothing here is
// fatal to the stream.
func (a *Aggregator) Add(ev sse.Event) {
	switch ev.Type {
	case a.types.TextDelta:
		a.text = append(a.text, ev.Data...)

	case a.types.ToolExecution:
		var exec models.ToolExecution
		if err := json.Unmarshal([]byte(ev.Data), &exec); err != nil {
			a.malformed++
			return
		}
		a.result.ToolExecutions = append(a.result.ToolExecutions, exec)

	case a.types.Image:
		var img models.ImageRef
		if err := json.Unmarshal([]byte(ev.Data), &img); err != nil {
			a.malformed++
			return
		}
		a.result.Images = append(a.result.Images, img)

	case a.types.Error:
		a.result.ErrorMessage = errorMessage(ev.Data)

	case a.types.Done:
		a.result.Done = true

	default:
		a.skipped++
	}
}

// AddAll folds a batch of events in order
func (a *Aggregator) AddAll(events []sse.Event) {
	for _, ev := range events {
		a.Add(ev)
	}
}

// Finalize returns the accumulated result
func (a *Aggregator) Finalize() *Result {
	a.result.ResponseText = string(a.text)
	return &a.result
}

// SkippedEvents reports how many events fell outside the vocabulary
func (a *Aggregator) SkippedEvents() int {
	return a.skipped
}

// MalformedPayloads reports how many recognized events carried undecodable data
func (a *Aggregator) MalformedPayloads() int {
	return a.malformed
}

// errorMessage pulls a human-readable message out of an error event payload,
// which may be a JSON object or plain text.
func errorMessage(data string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if data == "" {
		return "upstream error"
	}
	return data
}
