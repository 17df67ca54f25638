package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskpilot/taskpilot/mcp"
	"github.com/taskpilot/taskpilot/tools"
)

// MCP is the tool backend over an external MCP server. Tools are
// discovered once at startup via tools/list and registered read-only; a
// discovered tool whose schema requires a confirmation property is
// treated as destructive.
type MCP struct {
	client   *mcp.Client
	registry *tools.Registry
	logger   *slog.Logger
}

// NewMCP starts the MCP server command, performs discovery, and builds
// the descriptor registry.
func NewMCP(ctx context.Context, command string, args []string, logger *slog.Logger) (*MCP, error) {
	client, err := mcp.NewClient(ctx, command, args...)
	if err != nil {
		return nil, err
	}

	infos, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("tool discovery failed: %w", err)
	}

	var descriptors []*tools.Descriptor
	for _, info := range infos {
		schema := map[string]any{"type": "object"}
		if len(info.InputSchema) > 0 {
			if err := json.Unmarshal(info.InputSchema, &schema); err != nil {
				client.Close()
				return nil, fmt.Errorf("tool %s: invalid input schema: %w", info.Name, err)
			}
		}
		description := ""
		if info.Description != nil {
			description = *info.Description
		}
		destructive := tools.SchemaRequiresConfirmation(schema)

		d, err := tools.NewDescriptor(info.Name, description, schema, destructive)
		if err != nil {
			client.Close()
			return nil, err
		}
		descriptors = append(descriptors, d)

		logger.Info("discovered tool", "name", info.Name, "destructive", destructive)
	}

	registry, err := tools.NewRegistry(descriptors...)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &MCP{
		client:   client,
		registry: registry,
		logger:   logger,
	}, nil
}

// Name identifies the backend kind.
func (m *MCP) Name() string { return "mcp" }

// Registry returns the discovered descriptor registry.
func (m *MCP) Registry() *tools.Registry { return m.registry }

// Close stops the MCP server process.
func (m *MCP) Close() error { return m.client.Close() }

// CallTool forwards one tool call to the MCP server, mapping protocol
// errors onto the backend sentinels.
func (m *MCP) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	result, err := m.client.CallTool(ctx, name, arguments)
	if err != nil {
		return nil, classifyMCPError(err)
	}
	return result, nil
}

// classifyMCPError maps JSON-RPC error codes and messages onto the
// backend sentinels so the dispatcher can assign error kinds.
func classifyMCPError(err error) error {
	var callErr *mcp.CallError
	if !errors.As(err, &callErr) {
		return err
	}

	switch callErr.Code {
	case mcp.CodeMethodNotFound:
		return fmt.Errorf("%s: %w", callErr.Message, ErrNotFound)
	case mcp.CodeInvalidParams:
		return fmt.Errorf("%s: %w", callErr.Message, ErrInvalidArguments)
	}

	lower := strings.ToLower(callErr.Message)
	switch {
	case strings.Contains(lower, "not found"):
		return fmt.Errorf("%s: %w", callErr.Message, ErrNotFound)
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "validation"):
		return fmt.Errorf("%s: %w", callErr.Message, ErrInvalidArguments)
	}
	return err
}

// Verify MCP implements Backend
var _ Backend = (*MCP)(nil)
