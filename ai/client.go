// Package ai is the HTTP client for the upstream AI executor. The executor
// answers short operations with a single JSON body and long generations with
// a live event stream; multi-step operations additionally carry an operation
// id in a response header so clients can poll progress out-of-band.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-canvas-demo/backend/pkg/logger"
	"ai-canvas-demo/backend/pkg/resilience"
)

// OperationIDHeader is the out-of-band channel for the operation id, on both
// the upstream response and the client-facing response.
const OperationIDHeader = "X-Operation-Id"

// Config holds client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the upstream AI executor
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a client for the upstream executor
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		// No overall timeout on the http client: streamed responses can
		// run arbitrarily long. Per-call deadlines come from the request
		// context.
		httpClient: &http.Client{},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("upstream-ai"), log),
		log:        log,
	}
}

// HistoryMessage is one prior turn handed to the executor for context
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequest describes one streamed generation call
type StreamRequest struct {
	SessionID string           `json:"session_id,omitempty"`
	CanvasID  string           `json:"canvas_id,omitempty"`
	Topic     string           `json:"topic,omitempty"`
	Content   string           `json:"content"`
	History   []HistoryMessage `json:"history,omitempty"`
}

// StreamResponse is an open upstream event stream. Callers own Body and
// must close it.
type StreamResponse struct {
	Body        io.ReadCloser
	OperationID string
}

// UpstreamError reports a non-success upstream status received before any
// stream body was produced.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// OpenStream issues the streaming generation call. On a non-2xx status the
// response body is drained for a message and an *UpstreamError is returned;
// no stream exists in that case.
func (c *Client) OpenStream(ctx context.Context, req StreamRequest) (*StreamResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate/stream", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp *http.Response
	err = c.breaker.Execute(func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(httpReq)
		return doErr
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		resp.Body.Close()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &StreamResponse{
		Body:        resp.Body,
		OperationID: resp.Header.Get(OperationIDHeader),
	}, nil
}

// GenerateRequest describes one short synchronous operation
type GenerateRequest struct {
	Topic   string `json:"topic,omitempty"`
	Content string `json:"content"`
}

// GenerateResponse is the executor's single JSON answer for short operations
type GenerateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Generate issues a short synchronous call and decodes the single JSON body
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp *http.Response
	err = c.breaker.Execute(func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(httpReq)
		return doErr
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	if genResp.Error != "" {
		return nil, fmt.Errorf("upstream error: %s", genResp.Error)
	}
	return &genResp, nil
}

// readErrorMessage pulls a short message out of an error response body
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(raw)
}
