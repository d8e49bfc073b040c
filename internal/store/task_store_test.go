package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestTaskStoreCreateOpensTask(t *testing.T) {
	var query string
	var args []any
	execer := stubExecer{
		execFn: func(_ context.Context, q string, a ...any) (sql.Result, error) {
			query, args = q, a
			return stubResult{rows: 1}, nil
		},
	}
	err := NewTaskStore(stubDB{}).Create(context.Background(), execer, TaskInput{ID: "task-1", PosterID: "poster-1", Title: "Fix sink"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(query, "INSERT INTO tasks") || !strings.Contains(query, "'open'") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 4 || args[1] != "poster-1" || args[2] != "Fix sink" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestTaskStoreReads(t *testing.T) {
	read := func(t *testing.T, wantLock bool) stubDB {
		return stubDB{
			getFn: func(_ context.Context, dest any, query string, args ...any) error {
				if strings.HasSuffix(query, "FOR UPDATE") != wantLock {
					t.Fatalf("lock=%v expected for %q", wantLock, query)
				}
				*dest.(*Task) = Task{ID: args[0].(string), Status: TaskOpen}
				return nil
			},
		}
	}

	t.Run("plain", func(t *testing.T) {
		task, err := NewTaskStore(read(t, false)).GetByID(context.Background(), "task-1")
		if err != nil || task.ID != "task-1" {
			t.Fatalf("unexpected task %#v (%v)", task, err)
		}
	})
	t.Run("locked", func(t *testing.T) {
		task, err := NewTaskStore(stubDB{}).GetForUpdate(context.Background(), read(t, true), "task-2")
		if err != nil || task.Status != TaskOpen {
			t.Fatalf("unexpected task %#v (%v)", task, err)
		}
	})
}

func TestTaskStoreUpdateStatus(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, _ string, args ...any) (sql.Result, error) {
			if args[0] != TaskAssigned || args[1] != "task-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	if err := NewTaskStore(stubDB{}).UpdateStatus(context.Background(), execer, "task-1", TaskAssigned); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
