package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type AccountStore struct {
	db DB
}

type Account struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type AccountWithUser struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	Username  *string   `db:"username"`
	Email     *string   `db:"email"`
}

// AccountReconciliation compares the stored balance with the signed sum of
// the account's credit transactions.
type AccountReconciliation struct {
	AccountID     string `db:"account_id"`
	UserID        string `db:"user_id"`
	StoredBalance int64  `db:"stored_balance"`
	LedgerBalance int64  `db:"ledger_balance"`
	Difference    int64  `db:"difference"`
}

const accountColumns = `id, user_id, balance, created_at, updated_at`

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create opens an empty account. Every credit arrives through the ledger.
func (s *AccountStore) Create(ctx context.Context, tx Execer, id, userID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts (id, user_id, balance) VALUES ($1, $2, 0)`, id, userID)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (Account, error) {
	return scanAccount(ctx, s.db, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) (Account, error) {
	return s.GetByUserTx(ctx, s.db, userID)
}

// GetByUserTx resolves a user's account through q, usually an open
// transaction.
func (s *AccountStore) GetByUserTx(ctx context.Context, q Getter, userID string) (Account, error) {
	return scanAccount(ctx, q, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
}

func scanAccount(ctx context.Context, q Getter, query, key string) (Account, error) {
	var a Account
	if err := q.GetContext(ctx, &a, query, key); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Credit adds amount to the balance. sql.ErrNoRows means the account does
// not exist.
func (s *AccountStore) Credit(ctx context.Context, tx Getter, accountID string, amount int64) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`, amount, accountID)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DebitIfSufficient subtracts amount in a single conditional UPDATE. It
// reports ok=false, with no error and nothing changed, when the balance is
// lower than amount.
func (s *AccountStore) DebitIfSufficient(ctx context.Context, tx Getter, accountID string, amount int64) (int64, bool, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, accountID)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID); err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, sql.ErrNoRows
	}
	return 0, false, nil
}

func (s *AccountStore) ListAllWithUsers(ctx context.Context) ([]AccountWithUser, error) {
	var rows []AccountWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.user_id, a.balance, a.created_at,
		       u.username, u.email
		FROM accounts a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Reconcile lists every account whose stored balance can be checked against
// purchase + refund - spent. Pass a userID to restrict to one account.
func (s *AccountStore) Reconcile(ctx context.Context, userID string) ([]AccountReconciliation, error) {
	query := `
		SELECT a.id AS account_id,
		       a.user_id,
		       a.balance AS stored_balance,
		       COALESCE(SUM(CASE WHEN t.kind = 'spent' THEN -t.amount ELSE t.amount END), 0) AS ledger_balance,
		       (a.balance - COALESCE(SUM(CASE WHEN t.kind = 'spent' THEN -t.amount ELSE t.amount END), 0)) AS difference
		FROM accounts a
		LEFT JOIN credit_transactions t ON t.account_id = a.id
	`
	var args []any
	if userID != "" {
		query += " WHERE a.user_id = $1"
		args = append(args, userID)
	}
	query += " GROUP BY a.id, a.user_id, a.balance ORDER BY a.id"
	var rows []AccountReconciliation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
