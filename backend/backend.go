// Package backend defines the tool backend contract and its two
// implementations: an in-process sqlite-backed todo store and a remote
// MCP server reached over stdio.
package backend

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/taskpilot/taskpilot/tools"
)

// Sentinel errors the dispatcher maps onto the wire error taxonomy.
var (
	// ErrNotFound covers unknown tools and missing entities.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArguments covers malformed or rejected arguments.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Backend executes tool calls.
type Backend interface {
	// Name identifies the backend kind ("local", "mcp").
	Name() string

	// Registry returns the read-only descriptor registry established at
	// startup.
	Registry() *tools.Registry

	// CallTool executes one tool call and returns its JSON result.
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error)

	// Close releases backend resources.
	Close() error
}
