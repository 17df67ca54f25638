package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/taskpilot/backend"
	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/config"
	"github.com/taskpilot/taskpilot/dispatch"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/orchestrator"
	"github.com/taskpilot/taskpilot/reasoning"
	"github.com/taskpilot/taskpilot/request"
	"github.com/taskpilot/taskpilot/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedProvider returns canned replies in order.
type scriptedProvider struct {
	replies []llm.Reply
	calls   int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.Reply, error) {
	if p.calls >= len(p.replies) {
		return llm.Reply{}, context.DeadlineExceeded
	}
	reply := p.replies[p.calls]
	p.calls++
	return reply, nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	close(chunks)
	return nil, nil
}

func newTestServer(t *testing.T, provider llm.Provider) (*Server, *breaker.Breaker, *breaker.Breaker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	store, err := storage.NewTodoStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	toolBreaker := breaker.New("tool_backend", breaker.Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		ProbeQuota:       3,
	}, logger)
	reasoningBreaker := breaker.New("reasoning_backend", breaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		ProbeQuota:       2,
	}, logger)

	local, err := backend.NewLocal(store, logger)
	require.NoError(t, err)
	dispatcher := dispatch.New(local, toolBreaker, time.Second, logger)
	reasoner := reasoning.NewClient(provider, reasoningBreaker, time.Second, logger)
	orch := orchestrator.New(reasoner, dispatcher, local.Registry(), 10)

	srv := New(orch, request.NewAdmitter(100), toolBreaker, reasoningBreaker, config.StreamConfig{
		MaxInputLength:    100,
		HeartbeatInterval: 0,
		EventBuffer:       8,
	}, logger)
	return srv, toolBreaker, reasoningBreaker
}

func postChat(srv *Server, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestChatStreamsResponse(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{replies: []llm.Reply{
		{Content: "You have nothing due today."},
	}})

	w := postChat(srv, `{"message": "what is due today?"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	body := w.Body.String()
	assert.Contains(t, body, "event: response_delta")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, "You have nothing due today.")
}

func TestChatHonorsClientRequestID(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{replies: []llm.Reply{
		{Content: "Done."},
	}})

	w := postChat(srv, `{"message": "hello", "request_id": "req-42"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	// Every frame payload carries the correlation id.
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if strings.HasPrefix(line, "data: ") {
			assert.Contains(t, line, `"requestId":"req-42"`)
		}
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{})

	w := postChat(srv, `{"message": ""}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "empty", resp["error_code"])
	assert.NotEmpty(t, resp["request_id"])
}

func TestChatRejectsTooLongMessage(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{})

	long := strings.Repeat("a", 200)
	w := postChat(srv, `{"message": "`+long+`"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "too_long", resp["error_code"])
}

func TestChatRejectsMalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{})

	w := postChat(srv, `{"message":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestChatExecutesToolCalls(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{replies: []llm.Reply{
		{ToolCalls: []llm.ToolCall{{
			ID:        "c1",
			Name:      "create",
			Arguments: json.RawMessage(`{"title": "buy milk"}`),
		}}},
		{Content: "Created the task."},
	}})

	w := postChat(srv, `{"message": "add buy milk to my list"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event: tool_call")
	assert.Contains(t, body, `"status":"in_progress"`)
	assert.Contains(t, body, `"status":"success"`)
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"toolsCalled":["create"]`)
}

func TestHealthReportsOK(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status          string `json:"status"`
		UptimeSeconds   int64  `json:"uptime_seconds"`
		CircuitBreakers map[string]struct {
			State string `json:"state"`
		} `json:"circuit_breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "closed", resp.CircuitBreakers["tool_backend"].State)
	assert.Equal(t, "closed", resp.CircuitBreakers["reasoning_backend"].State)
}

func TestHealthDegradedWhenBreakerOpen(t *testing.T) {
	srv, toolBreaker, _ := newTestServer(t, &scriptedProvider{})

	// Trip the tool breaker.
	for i := 0; i < 5; i++ {
		_ = toolBreaker.Do(context.Background(), func(context.Context) error {
			return context.DeadlineExceeded
		})
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status          string `json:"status"`
		CircuitBreakers map[string]struct {
			State string `json:"state"`
		} `json:"circuit_breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "open", resp.CircuitBreakers["tool_backend"].State)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &scriptedProvider{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
