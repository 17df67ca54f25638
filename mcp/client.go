// Package mcp provides a Model Context Protocol (MCP) client used to reach
// an external tool backend over JSON-RPC on stdin/stdout.
//
// Information Hiding:
// - Process management hidden
// - JSON-RPC protocol details hidden
// - Request ID tracking hidden

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// JSON-RPC error codes the tool backend distinguishes.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// CallError is a JSON-RPC error returned by the MCP server.
type CallError struct {
	Code    int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Client communicates with an MCP server via JSON-RPC over stdin/stdout.
type Client struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	requestID uint64
	mu        sync.Mutex
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolInfo describes a tool advertised by the MCP server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// toolCallResult is the result shape of tools/call.
type toolCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewClient starts the given command as an MCP server and performs the
// protocol handshake.
func NewClient(ctx context.Context, command string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	client := &Client{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	if err := client.initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return client, nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "taskpilot",
			"version": "0.1.0",
		},
	}

	_, err := c.call(ctx, "initialize", params)
	return err
}

// ListTools returns all tools available on the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var toolsResult toolsListResult
	if err := json.Unmarshal(result, &toolsResult); err != nil {
		return nil, fmt.Errorf("failed to parse tools list: %w", err)
	}

	return toolsResult.Tools, nil
}

// CallTool calls a tool and returns the text payload of its result.
// A result marked isError is surfaced as a *CallError with code 0.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}
	params := map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	}

	result, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var callResult toolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("failed to parse tool call result: %w", err)
	}

	var texts []string
	for _, block := range callResult.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	payload := strings.Join(texts, "\n")

	if callResult.IsError {
		return nil, &CallError{Message: payload}
	}

	return json.RawMessage(payload), nil
}

// call sends one JSON-RPC request and reads its response. Calls are
// serialized; the protocol has no interleaving on a single pipe pair.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()

	if ctx.Err() != nil {
		c.mu.Unlock()
		return nil, ctx.Err()
	}

	c.requestID++
	request := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID,
		Method:  method,
		Params:  params,
	}

	reqJSON, err := json.Marshal(request)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := c.stdin.Write(append(reqJSON, '\n')); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	replies := make(chan readResult, 1)
	go func() {
		// The goroutine keeps the lock until the reply or a read error
		// arrives, so a call abandoned on context expiry cannot leave
		// its response on the pipe for the next caller. Later calls
		// queue behind the held mutex.
		line, err := c.stdout.ReadBytes('\n')
		replies <- readResult{line: line, err: err}
		c.mu.Unlock()
	}()

	var reply readResult
	select {
	case reply = <-replies:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if reply.err != nil {
		return nil, fmt.Errorf("failed to read response: %w", reply.err)
	}

	var response rpcResponse
	if err := json.Unmarshal(reply.line, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil {
		return nil, &CallError{Code: response.Error.Code, Message: response.Error.Message}
	}

	return response.Result, nil
}

// Close stops the MCP server process and releases resources. It does not
// take the call mutex: a reader stuck on a dead server holds the lock, and
// killing the process is what unblocks it.
func (c *Client) Close() error {
	if c.stdin != nil {
		c.stdin.Close()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}

	return nil
}
