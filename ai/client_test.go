package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-canvas-demo/backend/pkg/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.New(logger.Config{Level: "error", JSON: true, Output: io.Discard})
	return NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Timeout: 5 * time.Second}, log)
}

func TestOpenStream(t *testing.T) {
	payload := "event: text-delta\ndata: hello\n\n"

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate/stream", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var req StreamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.Content)

		w.Header().Set(OperationIDHeader, "op-42")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(payload))
	})

	resp, err := client.OpenStream(context.Background(), StreamRequest{Content: "hi"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "op-42", resp.OperationID)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestOpenStreamUpstreamError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	})

	_, err := client.OpenStream(context.Background(), StreamRequest{Content: "hi"})
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
	assert.Equal(t, "model overloaded", upstreamErr.Message)
}

func TestGenerate(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Text: "short answer"})
	})

	resp, err := client.Generate(context.Background(), GenerateRequest{Content: "question"})
	require.NoError(t, err)
	assert.Equal(t, "short answer", resp.Text)
}

func TestGenerateUpstreamErrorPayload(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GenerateResponse{Error: "bad prompt"})
	})

	_, err := client.Generate(context.Background(), GenerateRequest{Content: "question"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad prompt")
}

func TestReadErrorMessageFallsBackToRawBody(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("plain text failure"))
	})

	_, err := client.OpenStream(context.Background(), StreamRequest{Content: "hi"})
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "plain text failure", upstreamErr.Message)
}
