package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-canvas-demo/backend/ai"
	"ai-canvas-demo/backend/internal/models"
	"ai-canvas-demo/backend/internal/sse"
)

// scriptedBody returns one scripted chunk per Read call, then finalErr
// (io.EOF for a clean end).
type scriptedBody struct {
	chunks   [][]byte
	finalErr error
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.finalErr != nil {
			return 0, b.finalErr
		}
		return 0, io.EOF
	}
	chunk := b.chunks[0]
	b.chunks = b.chunks[1:]
	n := copy(p, chunk)
	return n, nil
}

func (b *scriptedBody) Close() error { return nil }

type fakeUpstream struct {
	body        io.ReadCloser
	operationID string
	err         error
}

func (u *fakeUpstream) OpenStream(ctx context.Context, req ai.StreamRequest) (*ai.StreamResponse, error) {
	if u.err != nil {
		return nil, u.err
	}
	return &ai.StreamResponse{Body: u.body, OperationID: u.operationID}, nil
}

// recordingSink captures forwarded bytes; failAfter > 0 makes writes fail
// once that many bytes have been accepted.
type recordingSink struct {
	buf       bytes.Buffer
	flushes   int
	failAfter int
}

func (s *recordingSink) Write(p []byte) (int, error) {
	if s.failAfter > 0 && s.buf.Len() >= s.failAfter {
		return 0, errors.New("client went away")
	}
	return s.buf.Write(p)
}

func (s *recordingSink) Flush() { s.flushes++ }

type fakeStore struct {
	appended []models.ChatMessage
	err      error
}

func (f *fakeStore) AppendMessage(ctx context.Context, sessionID, role, content string, meta *MessageMeta) (*models.ChatMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	msg := models.ChatMessage{SessionID: sessionID, Role: role, Content: content}
	if meta != nil {
		msg.ToolExecutions = meta.ToolExecutions
		msg.Images = meta.Images
	}
	f.appended = append(f.appended, msg)
	return &msg, nil
}

func chunksOf(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func newRelay(upstream *fakeUpstream, store *fakeStore) *RelayService {
	return NewRelayService(upstream, store, testLogger())
}

func TestRelayEndToEnd(t *testing.T) {
	raw := "event: text-delta\ndata: Hi\n\nevent: done\ndata: \n\n"
	// split mid-frame, the least convenient boundary
	upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf(raw[:17], raw[17:])}}
	store := &fakeStore{}
	sink := &recordingSink{}

	res, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "hello"}, sink, nil)
	require.NoError(t, err)

	// client saw the raw bytes verbatim and in order
	assert.Equal(t, raw, sink.buf.String())
	assert.Greater(t, sink.flushes, 0)

	// exactly one assistant turn persisted with the aggregated text
	require.Len(t, store.appended, 1)
	assert.Equal(t, models.RoleAssistant, store.appended[0].Role)
	assert.Equal(t, "Hi", store.appended[0].Content)
	assert.True(t, res.Persisted)
	assert.True(t, res.Aggregate.Done)
}

func TestRelayPersistenceIsolation(t *testing.T) {
	raw := "event: text-delta\ndata: Hi\n\nevent: done\ndata: \n\n"

	run := func(store *fakeStore) string {
		upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf(raw)}}
		sink := &recordingSink{}
		_, err := newRelay(upstream, store).Stream(context.Background(),
			ai.StreamRequest{SessionID: "s1", Content: "hello"}, sink, nil)
		require.NoError(t, err)
		return sink.buf.String()
	}

	healthy := run(&fakeStore{})
	broken := run(&fakeStore{err: errors.New("db down")})

	assert.Equal(t, healthy, broken, "a persistence failure must not alter the client-visible stream")
}

func TestRelayPersistenceFailureDoesNotError(t *testing.T) {
	upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf("event: text-delta\ndata: Hi\n\n")}}
	store := &fakeStore{err: errors.New("db down")}
	sink := &recordingSink{}

	res, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
}

func TestRelaySetupFailureEmitsErrorFrame(t *testing.T) {
	upstream := &fakeUpstream{err: &ai.UpstreamError{StatusCode: 503, Message: "overloaded"}}
	store := &fakeStore{}
	sink := &recordingSink{}

	_, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.Error(t, err)

	events := sse.NewParser().Feed(sink.buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
	assert.Contains(t, events[0].Data, "overloaded")

	assert.Empty(t, store.appended, "no partial persistence on setup failure")
}

func TestRelayMidStreamErrorDiscardsPartialAggregation(t *testing.T) {
	upstream := &fakeUpstream{body: &scriptedBody{
		chunks:   chunksOf("event: text-delta\ndata: partial\n\n"),
		finalErr: errors.New("connection reset"),
	}}
	store := &fakeStore{}
	sink := &recordingSink{}

	_, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.Error(t, err)

	// forwarded bytes plus a trailing synthetic error frame
	events := sse.NewParser().Feed(sink.buf.Bytes())
	require.Len(t, events, 2)
	assert.Equal(t, "text-delta", events[0].Type)
	assert.Equal(t, "error", events[1].Type)

	assert.Empty(t, store.appended, "truncated assistant turns are not persisted")
}

func TestRelayClientDisconnectSkipsPersistence(t *testing.T) {
	upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf(
		"event: text-delta\ndata: one\n\n",
		"event: text-delta\ndata: two\n\n",
	)}}
	store := &fakeStore{}
	sink := &recordingSink{failAfter: 1}

	res, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Empty(t, store.appended)
}

func TestRelayEmptyResponseNotPersisted(t *testing.T) {
	upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf("event: done\ndata: \n\n")}}
	store := &fakeStore{}
	sink := &recordingSink{}

	res, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Empty(t, store.appended)
}

func TestRelayTrailingPartialFrameForwardedNotAggregated(t *testing.T) {
	raw := "event: text-delta\ndata: whole\n\nevent: text-delta\ndata: trunca"
	upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf(raw)}}
	store := &fakeStore{}
	sink := &recordingSink{}

	_, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.NoError(t, err)

	// the client still received every raw byte
	assert.Equal(t, raw, sink.buf.String())

	// but only the well-formed prefix was aggregated and persisted
	require.Len(t, store.appended, 1)
	assert.Equal(t, "whole", store.appended[0].Content)
}

func TestRelayPropagatesOperationID(t *testing.T) {
	upstream := &fakeUpstream{
		body:        &scriptedBody{chunks: chunksOf("event: done\ndata: \n\n")},
		operationID: "op-abc",
	}
	sink := &recordingSink{}

	var seen string
	res, err := newRelay(upstream, &fakeStore{}).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink,
		func(operationID string) { seen = operationID })
	require.NoError(t, err)
	assert.Equal(t, "op-abc", seen)
	assert.Equal(t, "op-abc", res.OperationID)
}

func TestRelayAggregatesToolExecutionsAndImages(t *testing.T) {
	raw := "event: text-delta\ndata: Hello \n\n" +
		"event: tool-execution\ndata: {\"name\":\"search\"}\n\n" +
		"event: text-delta\ndata: world\n\n" +
		"event: image\ndata: {\"id\":\"abc\"}\n\n" +
		"event: done\ndata: \n\n"
	upstream := &fakeUpstream{body: &scriptedBody{chunks: chunksOf(raw)}}
	store := &fakeStore{}
	sink := &recordingSink{}

	_, err := newRelay(upstream, store).Stream(context.Background(),
		ai.StreamRequest{SessionID: "s1", Content: "x"}, sink, nil)
	require.NoError(t, err)

	require.Len(t, store.appended, 1)
	msg := store.appended[0]
	assert.Equal(t, "Hello world", msg.Content)
	require.Len(t, msg.ToolExecutions, 1)
	assert.Equal(t, "search", msg.ToolExecutions[0].Name)
	require.Len(t, msg.Images, 1)
	assert.Equal(t, "abc", msg.Images[0].ID)
}
