package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestStore(t *testing.T) *TodoStore {
	t.Helper()
	store, err := NewTodoStoreInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, NewTodo{Title: "buy milk", Priority: "high", Tags: "home"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected assigned id")
	}
	if created.Status != "active" {
		t.Errorf("new todo status = %q, want active", created.Status)
	}
	if created.CreatedAt == "" || created.UpdatedAt == "" {
		t.Error("timestamps not set")
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "buy milk" || got.Priority != "high" || got.Tags != "home" {
		t.Errorf("stored record mismatch: %+v", got)
	}
}

func TestCreateDefaultsPriority(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create(context.Background(), NewTodo{Title: "x"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Priority != "medium" {
		t.Errorf("default priority = %q, want medium", created.Priority)
	}
}

func TestListFiltersAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		priority := "low"
		if i%2 == 0 {
			priority = "high"
		}
		if _, err := store.Create(ctx, NewTodo{Title: fmt.Sprintf("task %d", i), Priority: priority}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	todos, total, err := store.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 || len(todos) != 5 {
		t.Fatalf("List returned %d/%d, want 5/5", len(todos), total)
	}
	if todos[0].Title != "task 0" {
		t.Errorf("expected creation order, first = %q", todos[0].Title)
	}

	high, total, err := store.List(ctx, ListFilter{Priority: "high"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(high) != 3 {
		t.Errorf("high priority filter returned %d/%d, want 3/3", len(high), total)
	}

	page, total, err := store.List(ctx, ListFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 5 {
		t.Errorf("paged total = %d, want 5", total)
	}
	if len(page) != 1 || page[0].Title != "task 4" {
		t.Errorf("paging wrong: %+v", page)
	}
}

func TestUpdatePartial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, NewTodo{Title: "draft report", Description: "q3 numbers"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	status := "completed"
	updated, err := store.Update(ctx, created.ID, UpdateTodo{Status: &status})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != "completed" {
		t.Errorf("status = %q, want completed", updated.Status)
	}
	if updated.Title != "draft report" || updated.Description != "q3 numbers" {
		t.Errorf("untouched fields changed: %+v", updated)
	}
}

func TestUpdateMissingID(t *testing.T) {
	store := newTestStore(t)

	title := "x"
	_, err := store.Update(context.Background(), 42, UpdateTodo{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, NewTodo{Title: "temp"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete should report ErrNotFound, got %v", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := t.TempDir() + "/nested/dir/todos.db"

	store, err := OpenTodoStore(path)
	if err != nil {
		t.Fatalf("OpenTodoStore failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Create(context.Background(), NewTodo{Title: "persisted"}); err != nil {
		t.Fatalf("Create on file-backed store failed: %v", err)
	}
}
