// Package orchestrator runs the per-request state machine: reasoning
// turns, tool dispatches, and the ordered event stream with exactly one
// terminal event.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/dispatch"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/observability"
	"github.com/taskpilot/taskpilot/reasoning"
	"github.com/taskpilot/taskpilot/request"
	"github.com/taskpilot/taskpilot/stream"
	"github.com/taskpilot/taskpilot/tools"
)

// State names the phases of one request.
type State int

const (
	StateAdmitted State = iota
	StateReasoning
	StateDispatching
	StateFinalizing
	StateDone
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateReasoning:
		return "reasoning"
	case StateDispatching:
		return "dispatching"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Orchestrator wires the reasoning client, the tool dispatcher, and the
// tool registry into the turn loop.
type Orchestrator struct {
	reasoner   *reasoning.Client
	dispatcher *dispatch.Dispatcher
	registry   *tools.Registry
	maxTurns   int
}

// New creates an orchestrator. maxTurns bounds the reasoning loop so the
// stream always terminates.
func New(reasoner *reasoning.Client, dispatcher *dispatch.Dispatcher, registry *tools.Registry, maxTurns int) *Orchestrator {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Orchestrator{
		reasoner:   reasoner,
		dispatcher: dispatcher,
		registry:   registry,
		maxTurns:   maxTurns,
	}
}

// Run drives one admitted request to its terminal event. Cancellation
// ends the run without a terminal; every other path emits exactly one
// done or error event.
func (o *Orchestrator) Run(ctx context.Context, req request.Context, sink *stream.Sink) {
	logger := req.Logger
	state := StateAdmitted
	setState := func(next State) {
		logger.Debug("state change", "from", state.String(), "to", next.String())
		state = next
	}

	emit := func(ev stream.Event) bool {
		err := sink.Emit(ev)
		if err == nil {
			return true
		}
		if !errors.Is(err, stream.ErrCanceled) {
			logger.Error("event rejected", "type", string(ev.Type), "error", err)
		}
		return false
	}

	fail := func(kind, message string, recoverable bool) {
		setState(StateErrored)
		logger.Warn("request failed", "kind", kind, "message", message)
		if emit(stream.ErrorEvent(kind, message, recoverable)) {
			observability.RecordTerminalEvent(string(stream.TypeError))
		}
	}

	messages := []llm.ChatMessage{
		llm.SystemMessage(o.systemPrompt()),
		llm.UserMessage(req.Request.SanitizedInput),
	}

	var toolsCalled []string
	var accumulated strings.Builder
	allSucceeded := true

	for turn := 1; turn <= o.maxTurns; turn++ {
		if ctx.Err() != nil {
			logger.Info("request canceled", "state", state.String(), "turn", turn)
			return
		}

		setState(StateReasoning)
		reply, err := o.reasoner.ChatWithTools(ctx, messages, o.registry.Definitions())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("request canceled", "state", state.String(), "turn", turn)
				return
			}
			if errors.Is(err, breaker.ErrOpen) {
				fail("dependency_unavailable", "reasoning backend unavailable", true)
				return
			}
			fail("upstream_failure", fmt.Sprintf("reasoning backend error: %v", err), false)
			return
		}

		if len(reply.ToolCalls) == 0 {
			setState(StateFinalizing)
			if reply.Content != "" {
				accumulated.WriteString(reply.Content)
				if !emit(stream.ResponseDelta(reply.Content, accumulated.String())) {
					return
				}
			} else if !o.streamFinal(ctx, messages, &accumulated, emit, fail) {
				return
			}
			setState(StateDone)
			if emit(stream.DoneEvent(accumulated.String(), toolsCalled, allSucceeded)) {
				observability.RecordTerminalEvent(string(stream.TypeDone))
			}
			logger.Info("request completed", "turns", turn, "tools_called", len(toolsCalled))
			return
		}

		// Intermediate text in a tool-calling turn is reasoning progress.
		if reply.Content != "" {
			if !emit(stream.Thinking(reply.Content)) {
				return
			}
		}
		messages = append(messages, llm.AssistantMessage(reply.Content, reply.ToolCalls))

		setState(StateDispatching)
		for _, call := range reply.ToolCalls {
			if ctx.Err() != nil {
				logger.Info("request canceled", "state", state.String(), "turn", turn)
				return
			}
			result := o.dispatcher.Dispatch(ctx, sink, call)
			toolsCalled = append(toolsCalled, call.Name)
			if !result.Success {
				allSucceeded = false
			}
			messages = append(messages, llm.ToolResultMessage(call.ID, result.Payload()))
		}
	}

	fail("upstream_failure",
		fmt.Sprintf("reasoning did not converge within %d turns", o.maxTurns), false)
}

// streamFinal fetches the closing response as streamed fragments when
// the converging turn carried no text, emitting one response_delta per
// fragment. Returns false when the run must end without a done event.
func (o *Orchestrator) streamFinal(ctx context.Context, messages []llm.ChatMessage,
	accumulated *strings.Builder, emit func(stream.Event) bool,
	fail func(kind, message string, recoverable bool)) bool {

	chunks := make(chan string, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- o.reasoner.StreamChat(ctx, messages, chunks)
	}()

	for chunk := range chunks {
		accumulated.WriteString(chunk)
		if !emit(stream.ResponseDelta(chunk, accumulated.String())) {
			// Consumer gone; unblock the producer and stop.
			for range chunks {
			}
			<-errc
			return false
		}
	}

	if err := <-errc; err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if errors.Is(err, breaker.ErrOpen) {
			fail("dependency_unavailable", "reasoning backend unavailable", true)
			return false
		}
		fail("upstream_failure", fmt.Sprintf("reasoning backend error: %v", err), false)
		return false
	}
	return true
}

func (o *Orchestrator) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a task management assistant. ")
	b.WriteString("Use the available tools to create, list, update, and delete the user's tasks. ")
	b.WriteString("Call tools when the request requires data changes or lookups; answer directly otherwise. ")
	b.WriteString("When an action is destructive, only proceed when the user has clearly confirmed it, and pass confirmation accordingly. ")
	b.WriteString("Available tools: ")
	b.WriteString(strings.Join(o.registry.Names(), ", "))
	b.WriteString(".")
	return b.String()
}
