// Package storage provides the SQLite todo store behind the local tool
// backend.
//
// Information Hiding:
// - SQLite connection management hidden behind the store type
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a todo id does not exist.
var ErrNotFound = errors.New("todo not found")

// Valid field vocabularies.
var (
	Statuses   = []string{"active", "completed", "archived"}
	Priorities = []string{"low", "medium", "high"}
)

// Todo is one stored task.
type Todo struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
	Tags        string `json:"tags,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// NewTodo holds the fields for creating a task.
type NewTodo struct {
	Title       string
	Description string
	Priority    string // defaults to medium
	DueDate     string
	Tags        string
}

// UpdateTodo holds the fields for a partial update. Nil means unchanged.
type UpdateTodo struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *string
	Tags        *string
}

// ListFilter narrows and pages a listing.
type ListFilter struct {
	Status   string
	Priority string
	Limit    int // defaults to 100, ceiling 500
	Offset   int
}

// TodoStore is a SQLite-backed task store.
type TodoStore struct {
	db *sql.DB
}

// OpenTodoStore opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenTodoStore(path string) (*TodoStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &TodoStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewTodoStoreInMemory creates an in-memory store (useful for testing).
func NewTodoStoreInMemory() (*TodoStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &TodoStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *TodoStore) Close() error {
	return s.db.Close()
}

func (s *TodoStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS todos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT 'medium',
			due_date TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_todos_status
		ON todos(status, created_at);

		CREATE INDEX IF NOT EXISTS idx_todos_priority
		ON todos(priority, created_at);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Create inserts a new task and returns the stored record.
func (s *TodoStore) Create(ctx context.Context, todo NewTodo) (Todo, error) {
	priority := todo.Priority
	if priority == "" {
		priority = "medium"
	}
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (title, description, priority, due_date, tags, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)`,
		todo.Title, todo.Description, priority, todo.DueDate, todo.Tags, now, now)
	if err != nil {
		return Todo{}, fmt.Errorf("failed to insert todo: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("failed to read inserted id: %w", err)
	}

	return s.Get(ctx, id)
}

// Get returns one task by id.
func (s *TodoStore) Get(ctx context.Context, id int64) (Todo, error) {
	var t Todo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, priority, due_date, tags, status, created_at, updated_at
		FROM todos WHERE id = ?`, id).Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.DueDate,
		&t.Tags, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Todo{}, fmt.Errorf("failed to query todo: %w", err)
	}
	return t, nil
}

// List returns tasks matching the filter in creation order, plus the
// total count of matches before paging.
func (s *TodoStore) List(ctx context.Context, filter ListFilter) ([]Todo, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, filter.Priority)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count todos: %w", err)
	}

	query := `
		SELECT id, title, description, priority, due_date, tags, status, created_at, updated_at
		FROM todos` + where + `
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query todos: %w", err)
	}
	defer rows.Close()

	todos := []Todo{} // Start with empty slice, not nil
	for rows.Next() {
		var t Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.DueDate,
			&t.Tags, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating todos: %w", err)
	}

	return todos, total, nil
}

// Update applies a partial update and returns the stored record.
func (s *TodoStore) Update(ctx context.Context, id int64, update UpdateTodo) (Todo, error) {
	var sets []string
	var args []interface{}

	set := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	set("title", update.Title)
	set("description", update.Description)
	set("status", update.Status)
	set("priority", update.Priority)
	set("due_date", update.DueDate)
	set("tags", update.Tags)

	if len(sets) == 0 {
		return s.Get(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE todos SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return Todo{}, fmt.Errorf("failed to update todo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Todo{}, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return Todo{}, fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}

	return s.Get(ctx, id)
}

// Delete removes a task by id.
func (s *TodoStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	return nil
}
