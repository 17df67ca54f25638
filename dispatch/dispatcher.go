// Package dispatch executes tool calls requested by the reasoning
// backend: argument validation, destructive-action gating, circuit
// breaker protection, and tool_call event bracketing.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskpilot/taskpilot/backend"
	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/observability"
	"github.com/taskpilot/taskpilot/stream"
)

// ErrorKind classifies tool call failures on the wire.
type ErrorKind string

const (
	KindNotFound              ErrorKind = "not_found"
	KindInvalidArguments      ErrorKind = "invalid_arguments"
	KindTimeout               ErrorKind = "timeout"
	KindDependencyUnavailable ErrorKind = "dependency_unavailable"
)

// Result is the outcome of one tool call, folded back into the
// conversation by the orchestrator.
type Result struct {
	ToolName string
	Success  bool
	Output   json.RawMessage
	Kind     ErrorKind
	Message  string
}

// Payload renders the result as the tool message content for the next
// reasoning turn.
func (r Result) Payload() string {
	if r.Success {
		return string(r.Output)
	}
	data, _ := json.Marshal(map[string]any{
		"error":     string(r.Kind),
		"message":   r.Message,
		"tool_name": r.ToolName,
	})
	return string(data)
}

// Dispatcher routes tool calls to the backend.
type Dispatcher struct {
	backend backend.Backend
	breaker *breaker.Breaker
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a dispatcher over the given backend, guarded by the tool
// backend circuit breaker.
func New(b backend.Backend, br *breaker.Breaker, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		backend: b,
		breaker: br,
		timeout: timeout,
		logger:  logger,
	}
}

// Dispatch executes one tool call, emitting tool_call bracket events on
// the sink. Local rejections (unknown tool, invalid arguments,
// unconfirmed destructive calls) never reach the backend and never count
// against its breaker.
func (d *Dispatcher) Dispatch(ctx context.Context, sink *stream.Sink, call llm.ToolCall) Result {
	emit := func(ev stream.Event) {
		// The sink rejects emission after cancel; the dispatch itself
		// still completes and its outcome is recorded once.
		if err := sink.Emit(ev); err != nil && !errors.Is(err, stream.ErrCanceled) {
			d.logger.Error("tool event rejected", "tool", call.Name, "error", err)
		}
	}

	emit(stream.ToolCallStarted(call.Name, call.Arguments))

	descriptor, ok := d.backend.Registry().Lookup(call.Name)
	if !ok {
		return d.reject(emit, call.Name, KindNotFound, fmt.Sprintf("unknown tool %q", call.Name))
	}

	if err := descriptor.ValidateArguments(call.Arguments); err != nil {
		return d.reject(emit, call.Name, KindInvalidArguments, err.Error())
	}

	if descriptor.Destructive && !confirmed(call.Arguments) {
		return d.reject(emit, call.Name, KindInvalidArguments,
			fmt.Sprintf("%s is a destructive action and requires confirmation", call.Name))
	}

	var output json.RawMessage
	start := time.Now()
	err := d.breaker.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		// Every backend-reported error counts against the breaker,
		// including not-found and schema violations.
		result, callErr := d.backend.CallTool(callCtx, call.Name, call.Arguments)
		if callErr != nil {
			return callErr
		}
		output = result
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		kind := classify(ctx, err)
		if errors.Is(err, breaker.ErrOpen) {
			observability.RecordBreakerRejection(d.breaker.Name())
		}
		observability.RecordToolCall(call.Name, string(kind), duration.Seconds())
		d.logger.Warn("tool call failed",
			"tool", call.Name,
			"kind", string(kind),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		emit(stream.ToolCallFailed(call.Name, string(kind)))
		return Result{ToolName: call.Name, Kind: kind, Message: err.Error()}
	}
	observability.RecordToolCall(call.Name, "success", duration.Seconds())
	d.logger.Info("tool call completed",
		"tool", call.Name,
		"duration_ms", duration.Milliseconds())
	emit(stream.ToolCallSucceeded(call.Name, output))
	return Result{ToolName: call.Name, Success: true, Output: output}
}

func (d *Dispatcher) reject(emit func(stream.Event), name string, kind ErrorKind, message string) Result {
	observability.RecordToolCall(name, string(kind), 0)
	d.logger.Info("tool call rejected", "tool", name, "kind", string(kind), "reason", message)
	emit(stream.ToolCallFailed(name, string(kind)))
	return Result{ToolName: name, Kind: kind, Message: message}
}

// classify maps a dispatch failure onto the wire error taxonomy.
func classify(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(err, breaker.ErrOpen):
		return KindDependencyUnavailable
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return KindTimeout
	case errors.Is(err, backend.ErrNotFound):
		return KindNotFound
	case errors.Is(err, backend.ErrInvalidArguments):
		return KindInvalidArguments
	default:
		return KindDependencyUnavailable
	}
}

// confirmed reports whether the arguments carry a truthy confirmation
// value. Booleans, numbers, and strings follow their natural truthiness;
// anything absent or null is false.
func confirmed(arguments json.RawMessage) bool {
	var args map[string]any
	if err := json.Unmarshal(arguments, &args); err != nil {
		return false
	}
	switch v := args["confirmation"].(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false"
	case float64:
		return v != 0
	default:
		return false
	}
}
