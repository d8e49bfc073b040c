package store

import (
	"context"
	"time"
)

const (
	TaskOpen     = "open"
	TaskAssigned = "assigned"
	TaskClosed   = "closed"
)

type TaskStore struct {
	db DB
}

type Task struct {
	ID          string    `db:"id"`
	PosterID    string    `db:"poster_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type TaskInput struct {
	ID          string
	PosterID    string
	Title       string
	Description string
}

const taskColumns = `id, poster_id, title, description, status, created_at, updated_at`

func NewTaskStore(db DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create always opens the task. Status moves forward only through
// UpdateStatus.
func (s *TaskStore) Create(ctx context.Context, tx Execer, input TaskInput) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (id, poster_id, title, description, status) VALUES ($1, $2, $3, $4, '`+TaskOpen+`')`,
		input.ID, input.PosterID, input.Title, input.Description)
	return err
}

func (s *TaskStore) GetByID(ctx context.Context, taskID string) (Task, error) {
	return scanTask(ctx, s.db, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
}

// GetForUpdate locks the task row until tx ends.
func (s *TaskStore) GetForUpdate(ctx context.Context, tx Getter, taskID string) (Task, error) {
	return scanTask(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID)
}

func (s *TaskStore) UpdateStatus(ctx context.Context, tx Execer, taskID, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2`, status, taskID)
	return err
}

func scanTask(ctx context.Context, q Getter, query, taskID string) (Task, error) {
	var t Task
	if err := q.GetContext(ctx, &t, query, taskID); err != nil {
		return Task{}, err
	}
	return t, nil
}
