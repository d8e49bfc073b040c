package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskmarket/internal/db"
	"taskmarket/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrInvalidTask = errors.New("task title is required")

type TaskService struct {
	txRunner db.TxRunner
	tasks    TaskStore
	audit    AuditStore
}

func NewTaskService(txRunner db.TxRunner, tasks TaskStore, audit AuditStore) *TaskService {
	return &TaskService{txRunner: txRunner, tasks: tasks, audit: audit}
}

func (s *TaskService) Create(ctx context.Context, posterID, title, description string) (store.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Task{}, ErrInvalidTask
	}
	input := store.TaskInput{
		ID:          uuid.NewString(),
		PosterID:    posterID,
		Title:       title,
		Description: strings.TrimSpace(description),
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.tasks.Create(ctx, tx, input); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, posterID, "task.create", "task", input.ID, map[string]string{"title": input.Title})
	})
	if err != nil {
		return store.Task{}, err
	}
	return s.Get(ctx, input.ID)
}

func (s *TaskService) Get(ctx context.Context, taskID string) (store.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Task{}, ErrNotFound
		}
		return store.Task{}, err
	}
	return task, nil
}
