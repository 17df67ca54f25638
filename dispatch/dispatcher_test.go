package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/backend"
	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/storage"
	"github.com/taskpilot/taskpilot/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toolBreaker(threshold int) *breaker.Breaker {
	return breaker.New("tool_backend", breaker.Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
		ProbeQuota:       1,
	}, testLogger())
}

// failingBackend wraps the local backend so CallTool always fails like a
// broken dependency.
type failingBackend struct {
	*backend.Local
	calls int
}

func (f *failingBackend) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	f.calls++
	return nil, fmt.Errorf("connection refused")
}

// slowBackend wraps the local backend so CallTool blocks until the call
// context expires.
type slowBackend struct {
	*backend.Local
}

func (s *slowBackend) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func localBackend(t *testing.T) *backend.Local {
	t.Helper()
	store, err := storage.NewTodoStoreInMemory()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	b, err := backend.NewLocal(store, testLogger())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func drain(sink *stream.Sink) []stream.Event {
	sink.Cancel()
	var events []stream.Event
	for {
		select {
		case ev, ok := <-sink.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestDispatchSuccess(t *testing.T) {
	d := New(localBackend(t), toolBreaker(5), time.Second, testLogger())
	sink := stream.NewSink(16, "req-1", testLogger())

	result := d.Dispatch(context.Background(), sink, llm.ToolCall{
		ID:        "c1",
		Name:      "create",
		Arguments: json.RawMessage(`{"title":"buy milk"}`),
	})

	if !result.Success {
		t.Fatalf("dispatch failed: %+v", result)
	}
	var todo storage.Todo
	if err := json.Unmarshal(result.Output, &todo); err != nil || todo.Title != "buy milk" {
		t.Errorf("unexpected output %s (err %v)", result.Output, err)
	}

	events := drain(sink)
	if len(events) != 2 {
		t.Fatalf("expected started+succeeded events, got %d", len(events))
	}
	if events[0].ToolCall.Status != stream.StatusInProgress {
		t.Errorf("first event status = %q", events[0].ToolCall.Status)
	}
	if events[1].ToolCall.Status != stream.StatusSuccess {
		t.Errorf("second event status = %q", events[1].ToolCall.Status)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	local := localBackend(t)
	br := toolBreaker(1)
	d := New(local, br, time.Second, testLogger())
	sink := stream.NewSink(16, "req-1", testLogger())

	result := d.Dispatch(context.Background(), sink, llm.ToolCall{Name: "rename"})
	if result.Success || result.Kind != KindNotFound {
		t.Fatalf("expected not_found, got %+v", result)
	}
	if br.State() != breaker.Closed {
		t.Error("local rejection must not touch the breaker")
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	d := New(localBackend(t), toolBreaker(5), time.Second, testLogger())
	sink := stream.NewSink(16, "req-1", testLogger())

	result := d.Dispatch(context.Background(), sink, llm.ToolCall{
		Name:      "create",
		Arguments: json.RawMessage(`{"priority":"high"}`), // missing title
	})
	if result.Success || result.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %+v", result)
	}
}

func TestDestructiveGating(t *testing.T) {
	store, err := storage.NewTodoStoreInMemory()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	local, err := backend.NewLocal(store, testLogger())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	t.Cleanup(func() { local.Close() })
	if _, err := local.CallTool(context.Background(), "create", json.RawMessage(`{"title":"keep me"}`)); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}

	br := toolBreaker(1)
	d := New(local, br, time.Second, testLogger())

	for _, arguments := range []string{
		`{"id":1,"confirmation":false}`,
		`{"id":1,"confirmation":""}`,
	} {
		sink := stream.NewSink(16, "req-1", testLogger())
		result := d.Dispatch(context.Background(), sink, llm.ToolCall{
			Name:      "delete",
			Arguments: json.RawMessage(arguments),
		})
		if result.Success || result.Kind != KindInvalidArguments {
			t.Fatalf("args %s: expected invalid_arguments, got %+v", arguments, result)
		}
	}

	// The record must still exist and the breaker untouched.
	if _, err := local.CallTool(context.Background(), "update", json.RawMessage(`{"id":1,"status":"completed"}`)); err != nil {
		t.Errorf("todo was deleted despite missing confirmation: %v", err)
	}
	if br.State() != breaker.Closed {
		t.Error("gated call must not count against the breaker")
	}

	sink := stream.NewSink(16, "req-1", testLogger())
	result := d.Dispatch(context.Background(), sink, llm.ToolCall{
		Name:      "delete",
		Arguments: json.RawMessage(`{"id":1,"confirmation":true}`),
	})
	if !result.Success {
		t.Fatalf("confirmed delete failed: %+v", result)
	}
}

func TestDispatchTimeout(t *testing.T) {
	d := New(&slowBackend{localBackend(t)}, toolBreaker(5), 20*time.Millisecond, testLogger())
	sink := stream.NewSink(16, "req-1", testLogger())

	result := d.Dispatch(context.Background(), sink, llm.ToolCall{
		Name:      "list",
		Arguments: json.RawMessage(`{}`),
	})
	if result.Success || result.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
}

func TestDispatchBreakerOpens(t *testing.T) {
	failing := &failingBackend{Local: localBackend(t)}
	br := toolBreaker(2)
	d := New(failing, br, time.Second, testLogger())

	for i := 0; i < 2; i++ {
		sink := stream.NewSink(16, "req-1", testLogger())
		result := d.Dispatch(context.Background(), sink, llm.ToolCall{
			Name:      "list",
			Arguments: json.RawMessage(`{}`),
		})
		if result.Kind != KindDependencyUnavailable {
			t.Fatalf("expected dependency_unavailable, got %+v", result)
		}
	}
	if br.State() != breaker.Open {
		t.Fatalf("breaker state = %v, want open", br.State())
	}

	calls := failing.calls
	sink := stream.NewSink(16, "req-1", testLogger())
	result := d.Dispatch(context.Background(), sink, llm.ToolCall{
		Name:      "list",
		Arguments: json.RawMessage(`{}`),
	})
	if result.Kind != KindDependencyUnavailable {
		t.Fatalf("expected dependency_unavailable while open, got %+v", result)
	}
	if failing.calls != calls {
		t.Error("backend invoked while breaker open")
	}
}

func TestBackendErrorsCountAsBreakerFailures(t *testing.T) {
	br := toolBreaker(2)
	d := New(localBackend(t), br, time.Second, testLogger())

	// Backend-reported not-found errors keep their error kind but still
	// count against the breaker, opening it at the threshold.
	for i := 0; i < 2; i++ {
		sink := stream.NewSink(16, "req-1", testLogger())
		result := d.Dispatch(context.Background(), sink, llm.ToolCall{
			Name:      "update",
			Arguments: json.RawMessage(`{"id":404,"status":"completed"}`),
		})
		if result.Success || result.Kind != KindNotFound {
			t.Fatalf("call %d: expected not_found, got %+v", i, result)
		}
	}
	if br.State() != breaker.Open {
		t.Fatalf("breaker state = %v, want open after backend errors", br.State())
	}

	sink := stream.NewSink(16, "req-1", testLogger())
	result := d.Dispatch(context.Background(), sink, llm.ToolCall{
		Name:      "list",
		Arguments: json.RawMessage(`{}`),
	})
	if result.Kind != KindDependencyUnavailable {
		t.Fatalf("expected dependency_unavailable while open, got %+v", result)
	}
}

func TestResultPayload(t *testing.T) {
	success := Result{ToolName: "list", Success: true, Output: json.RawMessage(`{"total":0}`)}
	if success.Payload() != `{"total":0}` {
		t.Errorf("success payload = %q", success.Payload())
	}

	failure := Result{ToolName: "delete", Kind: KindInvalidArguments, Message: "needs confirmation"}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(failure.Payload()), &decoded); err != nil {
		t.Fatalf("failure payload not JSON: %v", err)
	}
	if decoded["error"] != "invalid_arguments" {
		t.Errorf("failure payload = %v", decoded)
	}
}
