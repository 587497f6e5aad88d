package service

import (
	"context"
	"errors"
	"io"

	"ai-canvas-demo/backend/ai"
	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/internal/sse"
	"ai-canvas-demo/backend/internal/stream"
	"ai-canvas-demo/backend/pkg/logger"
)

// relayBufferSize is the read buffer for upstream chunks. It bounds a single
// read, not the stream; chunks are forwarded as they arrive, never batched.
const relayBufferSize = 32 * 1024

// StreamSink is where relayed bytes go. gin's ResponseWriter satisfies it;
// tests use a buffer with a no-op flusher.
type StreamSink interface {
	io.Writer
	Flush()
}

// UpstreamOpener opens the streaming call against the AI executor
type UpstreamOpener interface {
	OpenStream(ctx context.Context, req ai.StreamRequest) (*ai.StreamResponse, error)
}

// MessageAppender is the slice of the session store the relay needs
type MessageAppender interface {
	AppendMessage(ctx context.Context, sessionID, role, content string, meta *MessageMeta) (*models.ChatMessage, error)
}

// RelayResult reports what one relayed call did
type RelayResult struct {
	OperationID string
	Persisted   bool
	Aggregate   *stream.Result
}

// RelayService coordinates one proxied generation call: it forwards raw
// upstream bytes to the client verbatim while feeding the same bytes through
// a private frame parser and aggregator, then persists the aggregated
// assistant turn after the client stream has fully ended. Each call gets
// fresh parser and aggregator instances; concurrent relays share nothing but
// the store.
type RelayService struct {
	upstream UpstreamOpener
	store    MessageAppender
	log      *logger.Logger
}

// NewRelayService creates a relay
func NewRelayService(upstream UpstreamOpener, store MessageAppender, log *logger.Logger) *RelayService {
	return &RelayService{upstream: upstream, store: store, log: log}
}

// Stream runs one relayed call. onOpen, when non-nil, fires after the
// upstream call is established and before any byte is written to the sink,
// so callers can surface the operation id as a response header. Setup and
// mid-stream failures surface to the client as a synthetic error frame over
// the sink, since the client was promised an event stream.
func (r *RelayService) Stream(ctx context.Context, req ai.StreamRequest, sink StreamSink, onOpen func(operationID string)) (*RelayResult, error) {
	writer := sse.NewWriter(sink, sink)

	upstream, err := r.upstream.OpenStream(ctx, req)
	if err != nil {
		relayStreamsTotal.WithLabelValues(outcomeSetupFailed).Inc()
		r.log.LogError(err, "upstream stream setup failed", "session_id", req.SessionID)
		if werr := writer.WriteError(setupErrorMessage(err)); werr != nil {
			r.log.LogError(werr, "failed to write setup error frame")
		}
		return nil, err
	}
	defer upstream.Body.Close()

	if onOpen != nil {
		onOpen(upstream.OperationID)
	}

	parser := sse.NewParser()
	agg := stream.NewAggregator()
	result := &RelayResult{OperationID: upstream.OperationID}

	var (
		clientGone bool
		streamErr  error
	)

	buf := make([]byte, relayBufferSize)
	for {
		if !clientGone && ctx.Err() != nil {
			clientGone = true
		}

		n, readErr := upstream.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			if !clientGone {
				if _, werr := sink.Write(chunk); werr != nil {
					clientGone = true
				} else {
					sink.Flush()
					relayBytesForwarded.Add(float64(n))
				}
			}

			// the same chunk feeds the parsed view regardless of the sink
			agg.AddAll(parser.Feed(chunk))
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				streamErr = readErr
			}
			break
		}

		if clientGone {
			// sink is gone; abandon the upstream call instead of draining
			// it to completion, the deferred close releases the connection
			break
		}
	}

	result.Aggregate = agg.Finalize()

	switch {
	case clientGone:
		// partial aggregation is discarded, same policy as a mid-stream
		// transport failure: a truncated assistant turn is worse than a
		// missing one
		relayStreamsTotal.WithLabelValues(outcomeClientGone).Inc()
		r.log.Info("client disconnected mid-stream", "session_id", req.SessionID)
		return result, nil

	case streamErr != nil:
		relayStreamsTotal.WithLabelValues(outcomeStreamFailed).Inc()
		r.log.LogError(streamErr, "upstream transport error mid-stream", "session_id", req.SessionID)
		if werr := writer.WriteError("stream interrupted"); werr != nil {
			r.log.LogError(werr, "failed to write mid-stream error frame")
		}
		return result, streamErr
	}

	relayStreamsTotal.WithLabelValues(outcomeCompleted).Inc()

	if agg.SkippedEvents() > 0 || agg.MalformedPayloads() > 0 {
		r.log.Debug("stream contained unaggregated events",
			"session_id", req.SessionID,
			"skipped", agg.SkippedEvents(),
			"malformed", agg.MalformedPayloads(),
		)
	}
	if result.Aggregate.Failed() {
		r.log.Warn("upstream reported an error event mid-stream",
			"session_id", req.SessionID, "error", result.Aggregate.ErrorMessage)
	}

	r.persist(ctx, req.SessionID, result)
	return result, nil
}

// persist stores the aggregated assistant turn. Failure here is logged and
// swallowed: the client already received the complete stream, and the
// client-visible outcome must reflect what the client received.
func (r *RelayService) persist(ctx context.Context, sessionID string, result *RelayResult) {
	if sessionID == "" || result.Aggregate.ResponseText == "" {
		return
	}

	// detach from the request context so a teardown race cannot cancel a
	// write the client-visible stream already committed to
	ctx = context.WithoutCancel(ctx)

	meta := &MessageMeta{
		ToolExecutions: result.Aggregate.ToolExecutions,
		Images:         result.Aggregate.Images,
	}
	if _, err := r.store.AppendMessage(ctx, sessionID, models.RoleAssistant, result.Aggregate.ResponseText, meta); err != nil {
		relayPersistenceFailures.Inc()
		r.log.LogError(err, "failed to persist assistant message", "session_id", sessionID)
		return
	}
	result.Persisted = true
}

// setupErrorMessage maps a setup failure to the client-facing frame payload
func setupErrorMessage(err error) string {
	var upstreamErr *ai.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Message
	}
	return "failed to reach AI service"
}
