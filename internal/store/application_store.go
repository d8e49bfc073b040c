package store

import (
	"context"
	"time"

	"taskmarket/internal/db"
	"taskmarket/internal/negotiation"

	"github.com/shopspring/decimal"
)

type ApplicationStore struct {
	db DB
}

type Application struct {
	ID             string              `db:"id"`
	TaskID         string              `db:"task_id"`
	PosterID       string              `db:"poster_id"`
	WorkerID       string              `db:"worker_id"`
	Status         negotiation.Status  `db:"status"`
	Message        *string             `db:"message"`
	ProposedPrice  decimal.NullDecimal `db:"proposed_price"`
	LastProposedBy negotiation.Party   `db:"last_proposed_by"`
	ChargedCredits int64               `db:"charged_credits"`
	SelectedAt     *time.Time          `db:"selected_at"`
	Version        int64               `db:"version"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

func (a Application) Snapshot() negotiation.Snapshot {
	return negotiation.Snapshot{Status: a.Status, LastProposedBy: a.LastProposedBy}
}

const applicationColumns = `id, task_id, poster_id, worker_id, status, message, proposed_price, last_proposed_by,
		       charged_credits, selected_at, version, created_at, updated_at`

func NewApplicationStore(db DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

func (s *ApplicationStore) Create(ctx context.Context, tx Execer, app Application) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO applications (id, task_id, poster_id, worker_id, status, message, proposed_price, last_proposed_by, charged_credits, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
	`, app.ID, app.TaskID, app.PosterID, app.WorkerID, string(app.Status), app.Message, app.ProposedPrice,
		string(app.LastProposedBy), app.ChargedCredits)
	return err
}

func (s *ApplicationStore) GetByID(ctx context.Context, applicationID string) (Application, error) {
	var row Application
	err := s.db.GetContext(ctx, &row, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE id = $1
	`, applicationID)
	if err != nil {
		return Application{}, err
	}
	return row, nil
}

// GetForUpdate row-locks the application so concurrent transitions on it
// serialize.
func (s *ApplicationStore) GetForUpdate(ctx context.Context, tx Getter, applicationID string) (Application, error) {
	var row Application
	err := tx.GetContext(ctx, &row, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE id = $1
		FOR UPDATE
	`, applicationID)
	if err != nil {
		return Application{}, err
	}
	return row, nil
}

// Update writes the negotiated fields if app.Version is still current and
// bumps the version. A stale version yields db.ErrConcurrentModification.
func (s *ApplicationStore) Update(ctx context.Context, tx Execer, app Application) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE applications
		SET status = $1,
		    proposed_price = $2,
		    last_proposed_by = $3,
		    charged_credits = $4,
		    selected_at = $5,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $6 AND version = $7
	`, string(app.Status), app.ProposedPrice, string(app.LastProposedBy), app.ChargedCredits, app.SelectedAt, app.ID, app.Version)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return db.ErrConcurrentModification
	}
	return nil
}

func (s *ApplicationStore) ListByTask(ctx context.Context, taskID string) ([]Application, error) {
	var rows []Application
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE task_id = $1
		ORDER BY created_at, id
	`, taskID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ApplicationStore) ListByWorker(ctx context.Context, workerID string) ([]Application, error) {
	var rows []Application
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE worker_id = $1
		ORDER BY created_at DESC, id
	`, workerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
