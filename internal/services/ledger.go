package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"taskmarket/internal/db"
	"taskmarket/internal/money"
	"taskmarket/internal/store"
	"taskmarket/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Entry describes one balance mutation and the transaction row that
// records it.
type Entry struct {
	AccountID     string
	Amount        int64
	Kind          string
	Description   string
	ApplicationID string
	ExternalRef   string
}

func (e Entry) record(balanceAfter int64) store.CreditTransactionInput {
	input := store.CreditTransactionInput{
		ID:           uuid.NewString(),
		AccountID:    e.AccountID,
		Amount:       e.Amount,
		Kind:         e.Kind,
		Description:  e.Description,
		BalanceAfter: balanceAfter,
	}
	if e.ApplicationID != "" {
		input.ApplicationID = &e.ApplicationID
	}
	if e.ExternalRef != "" {
		input.ExternalRef = &e.ExternalRef
	}
	return input
}

// CreditLedger owns account balances. Every mutation writes exactly one
// credit_transactions row in the caller's transaction.
type CreditLedger struct {
	txRunner db.TxRunner
	accounts AccountStore
	ledger   LedgerStore
	hub      BalanceHub
	logger   *slog.Logger
}

func NewCreditLedger(txRunner db.TxRunner, accounts AccountStore, ledger LedgerStore, hub BalanceHub, logger *slog.Logger) *CreditLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditLedger{
		txRunner: txRunner,
		accounts: accounts,
		ledger:   ledger,
		hub:      hub,
		logger:   logger,
	}
}

// Credit adds e.Amount and returns the new balance.
func (l *CreditLedger) Credit(ctx context.Context, tx store.Tx, e Entry) (int64, error) {
	if e.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := l.accounts.Credit(ctx, tx, e.AccountID, e.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if err := l.ledger.Insert(ctx, tx, e.record(balance)); err != nil {
		return 0, err
	}
	return balance, nil
}

// TryDebit subtracts e.Amount only if the balance covers it. ok=false is
// the insufficient-credit outcome: nothing is written and err is nil.
func (l *CreditLedger) TryDebit(ctx context.Context, tx store.Tx, e Entry) (balance int64, ok bool, err error) {
	if e.Amount <= 0 {
		return 0, false, ErrInvalidAmount
	}
	balance, ok, err = l.accounts.DebitIfSufficient(ctx, tx, e.AccountID, e.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if err := l.ledger.Insert(ctx, tx, e.record(balance)); err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// GetBalance is a plain read and may lag concurrent writers.
func (l *CreditLedger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	account, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return account.Balance, nil
}

func (l *CreditLedger) BalanceForUser(ctx context.Context, userID string) (store.Account, error) {
	account, err := l.accounts.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, ErrNotFound
		}
		return store.Account{}, err
	}
	return account, nil
}

func (l *CreditLedger) History(ctx context.Context, userID string, limit, offset int) ([]store.CreditTransaction, error) {
	account, err := l.BalanceForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.ledger.ListByAccount(ctx, account.ID, limit, offset)
}

type TopUpRequest struct {
	UserID    string
	Amount    int64
	Reference string
}

type TopUpResult struct {
	AccountID string
	Balance   int64
}

// TopUp records a confirmed external payment as a purchase. Reference is the
// payment provider's id; replaying it yields ErrDuplicateTopUp.
func (l *CreditLedger) TopUp(ctx context.Context, req TopUpRequest) (TopUpResult, error) {
	if req.Amount <= 0 {
		return TopUpResult{}, ErrInvalidAmount
	}
	if req.Reference == "" {
		return TopUpResult{}, ErrMissingTopUpReference
	}
	var result TopUpResult
	err := l.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := l.accounts.GetByUserTx(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		balance, err := l.Credit(ctx, tx, Entry{
			AccountID:   account.ID,
			Amount:      req.Amount,
			Kind:        store.KindPurchase,
			Description: "Credit purchase",
			ExternalRef: req.Reference,
		})
		if err != nil {
			return err
		}
		result = TopUpResult{AccountID: account.ID, Balance: balance}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return TopUpResult{}, ErrDuplicateTopUp
		}
		return TopUpResult{}, err
	}
	l.logger.Info("credits purchased", "user_id", req.UserID, "amount", req.Amount, "balance", result.Balance, "reference", req.Reference)
	if l.hub != nil {
		l.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
			AccountID: result.AccountID,
			Balance:   money.FormatCredits(result.Balance),
		})
	}
	return result, nil
}

type AuditReport struct {
	Accounts     []store.AccountReconciliation     `json:"accounts"`
	Applications []store.ApplicationReconciliation `json:"applications"`
}

func (r AuditReport) Consistent() bool {
	return len(r.Accounts) == 0 && len(r.Applications) == 0
}

// Audit lists every account whose stored balance differs from its
// transaction log, and every application whose charged_credits differs from
// spent minus refund tagged with it.
func (l *CreditLedger) Audit(ctx context.Context) (AuditReport, error) {
	accounts, err := l.accounts.Reconcile(ctx, "")
	if err != nil {
		return AuditReport{}, err
	}
	report := AuditReport{
		Accounts:     []store.AccountReconciliation{},
		Applications: []store.ApplicationReconciliation{},
	}
	for _, row := range accounts {
		if row.Difference != 0 {
			report.Accounts = append(report.Accounts, row)
		}
	}
	apps, err := l.ledger.ReconcileApplications(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	report.Applications = append(report.Applications, apps...)
	if !report.Consistent() {
		l.logger.Error("ledger audit found mismatches", "accounts", len(report.Accounts), "applications", len(report.Applications))
	}
	return report, nil
}

// SelfCheck reconciles a single user's account.
func (l *CreditLedger) SelfCheck(ctx context.Context, userID string) (store.AccountReconciliation, error) {
	rows, err := l.accounts.Reconcile(ctx, userID)
	if err != nil {
		return store.AccountReconciliation{}, err
	}
	if len(rows) == 0 {
		return store.AccountReconciliation{}, ErrNotFound
	}
	return rows[0], nil
}
