package store

import (
	"context"
	"time"
)

const (
	KindPurchase = "purchase"
	KindSpent    = "spent"
	KindRefund   = "refund"
)

// LedgerStore is the append-only credit_transactions log. Rows are never
// updated or deleted.
type LedgerStore struct {
	db DB
}

type CreditTransactionInput struct {
	ID            string
	AccountID     string
	Amount        int64
	Kind          string
	Description   string
	ApplicationID *string
	ExternalRef   *string
	BalanceAfter  int64
}

type CreditTransaction struct {
	ID            string    `db:"id"`
	AccountID     string    `db:"account_id"`
	Amount        int64     `db:"amount"`
	Kind          string    `db:"kind"`
	Description   string    `db:"description"`
	ApplicationID *string   `db:"application_id"`
	ExternalRef   *string   `db:"external_ref"`
	BalanceAfter  int64     `db:"balance_after"`
	CreatedAt     time.Time `db:"created_at"`
}

// ApplicationReconciliation compares an application's recorded reservation
// with spent - refund over the transactions tagged with it.
type ApplicationReconciliation struct {
	ApplicationID  string `db:"application_id"`
	Status         string `db:"status"`
	ChargedCredits int64  `db:"charged_credits"`
	LedgerCharged  int64  `db:"ledger_charged"`
	Difference     int64  `db:"difference"`
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, input CreditTransactionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, account_id, amount, kind, description, application_id, external_ref, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, input.ID, input.AccountID, input.Amount, input.Kind, input.Description, input.ApplicationID, input.ExternalRef, input.BalanceAfter)
	return err
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]CreditTransaction, error) {
	var rows []CreditTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, amount, kind, description, application_id, external_ref, balance_after, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReconcileApplications returns only mismatched applications.
func (s *LedgerStore) ReconcileApplications(ctx context.Context) ([]ApplicationReconciliation, error) {
	var rows []ApplicationReconciliation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS application_id,
		       a.status,
		       a.charged_credits,
		       COALESCE(SUM(CASE WHEN t.kind = 'spent' THEN t.amount WHEN t.kind = 'refund' THEN -t.amount ELSE 0 END), 0) AS ledger_charged,
		       (a.charged_credits - COALESCE(SUM(CASE WHEN t.kind = 'spent' THEN t.amount WHEN t.kind = 'refund' THEN -t.amount ELSE 0 END), 0)) AS difference
		FROM applications a
		LEFT JOIN credit_transactions t ON t.application_id = a.id
		GROUP BY a.id, a.status, a.charged_credits
		HAVING a.charged_credits <> COALESCE(SUM(CASE WHEN t.kind = 'spent' THEN t.amount WHEN t.kind = 'refund' THEN -t.amount ELSE 0 END), 0)
		ORDER BY a.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
