package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskpilot/taskpilot/storage"
	"github.com/taskpilot/taskpilot/tools"
)

// Local is the in-process tool backend over the sqlite todo store.
type Local struct {
	store    *storage.TodoStore
	registry *tools.Registry
	logger   *slog.Logger
}

// NewLocal creates the local backend with the built-in tool registry.
func NewLocal(store *storage.TodoStore, logger *slog.Logger) (*Local, error) {
	registry, err := tools.Builtin()
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	return &Local{
		store:    store,
		registry: registry,
		logger:   logger,
	}, nil
}

// Name identifies the backend kind.
func (l *Local) Name() string { return "local" }

// Registry returns the built-in descriptor registry.
func (l *Local) Registry() *tools.Registry { return l.registry }

// Close closes the underlying store.
func (l *Local) Close() error { return l.store.Close() }

// CallTool executes one todo tool call against the store.
func (l *Local) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}

	switch name {
	case "create":
		return l.create(ctx, arguments)
	case "list":
		return l.list(ctx, arguments)
	case "update":
		return l.update(ctx, arguments)
	case "delete":
		return l.delete(ctx, arguments)
	default:
		return nil, fmt.Errorf("unknown tool %s: %w", name, ErrNotFound)
	}
}

func (l *Local) create(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args tools.CreateArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args.DueDate != "" {
		if _, err := time.Parse(time.RFC3339, args.DueDate); err != nil {
			return nil, fmt.Errorf("%w: due_date must be RFC 3339", ErrInvalidArguments)
		}
	}

	todo, err := l.store.Create(ctx, storage.NewTodo{
		Title:       args.Title,
		Description: args.Description,
		Priority:    args.Priority,
		DueDate:     args.DueDate,
		Tags:        args.Tags,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("todo created", "id", todo.ID, "title", todo.Title)
	return json.Marshal(todo)
}

func (l *Local) list(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args tools.ListArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 100
	}
	todos, total, err := l.store.List(ctx, storage.ListFilter{
		Status:   args.Status,
		Priority: args.Priority,
		Limit:    limit,
		Offset:   args.Offset,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"todos":  todos,
		"total":  total,
		"limit":  limit,
		"offset": args.Offset,
	})
}

func (l *Local) update(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	// Partial update: only keys present in the JSON are applied, so the
	// arguments are decoded with pointer fields rather than tools.UpdateArgs.
	var args struct {
		ID          int64   `json:"id"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Priority    *string `json:"priority"`
		DueDate     *string `json:"due_date"`
		Tags        *string `json:"tags"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args.DueDate != nil && *args.DueDate != "" {
		if _, err := time.Parse(time.RFC3339, *args.DueDate); err != nil {
			return nil, fmt.Errorf("%w: due_date must be RFC 3339", ErrInvalidArguments)
		}
	}

	todo, err := l.store.Update(ctx, args.ID, storage.UpdateTodo{
		Title:       args.Title,
		Description: args.Description,
		Status:      args.Status,
		Priority:    args.Priority,
		DueDate:     args.DueDate,
		Tags:        args.Tags,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("todo %d: %w", args.ID, ErrNotFound)
		}
		return nil, err
	}

	l.logger.Info("todo updated", "id", todo.ID)
	return json.Marshal(todo)
}

func (l *Local) delete(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args tools.DeleteArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	if err := l.store.Delete(ctx, args.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("todo %d: %w", args.ID, ErrNotFound)
		}
		return nil, err
	}

	l.logger.Info("todo deleted", "id", args.ID)
	return json.Marshal(map[string]any{"deleted": true, "id": args.ID})
}

// Verify Local implements Backend
var _ Backend = (*Local)(nil)
