// Package reasoning guards the reasoning backend provider with a circuit
// breaker and a per-call timeout.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/llm"
)

// ErrTimeout indicates the reasoning call exceeded its deadline.
var ErrTimeout = errors.New("reasoning call timed out")

// Client wraps an llm.Provider so every call goes through the reasoning
// backend's circuit breaker and carries a bounded deadline.
type Client struct {
	provider llm.Provider
	breaker  *breaker.Breaker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient creates a guarded reasoning client.
func NewClient(provider llm.Provider, br *breaker.Breaker, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		provider: provider,
		breaker:  br,
		timeout:  timeout,
		logger:   logger,
	}
}

// ChatWithTools runs one reasoning turn under breaker protection.
// A breaker rejection surfaces as breaker.ErrOpen; a deadline hit
// surfaces as ErrTimeout. Both count toward (or are caused by) the
// reasoning backend's breaker state.
func (c *Client) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.Reply, error) {
	var reply llm.Reply

	start := time.Now()
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		r, callErr := c.provider.ChatWithTools(callCtx, messages, tools)
		if callErr != nil {
			// A deadline hit on the call context is a backend failure,
			// not a caller cancellation.
			if errors.Is(callErr, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, callErr)
			}
			return callErr
		}
		reply = r
		return nil
	})
	if err != nil {
		c.logger.Warn("reasoning call failed",
			"provider", c.provider.Name(),
			"model", c.provider.Model(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return llm.Reply{}, err
	}

	c.logger.Debug("reasoning call completed",
		"provider", c.provider.Name(),
		"model", c.provider.Model(),
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(reply.ToolCalls))
	return reply, nil
}

// StreamChat streams the assistant's closing text under the same breaker
// and deadline as ChatWithTools. The provider closes chunks when the
// stream ends; when the breaker rejects the call before the provider
// runs, chunks is closed here so consumers never hang.
func (c *Client) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) error {
	start := time.Now()
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		_, callErr := c.provider.StreamChat(callCtx, messages, chunks)
		if callErr != nil {
			if errors.Is(callErr, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			close(chunks)
		}
		c.logger.Warn("streaming call failed",
			"provider", c.provider.Name(),
			"model", c.provider.Model(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return err
	}

	c.logger.Debug("streaming call completed",
		"provider", c.provider.Name(),
		"model", c.provider.Model(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
