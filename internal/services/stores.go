package services

import (
	"context"

	"taskmarket/internal/events"
	"taskmarket/internal/store"
	"taskmarket/internal/websocket"
)

type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (store.Account, error)
	GetByUser(ctx context.Context, userID string) (store.Account, error)
	GetByUserTx(ctx context.Context, tx store.Getter, userID string) (store.Account, error)
	Credit(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, error)
	DebitIfSufficient(ctx context.Context, tx store.Getter, accountID string, amount int64) (int64, bool, error)
	Reconcile(ctx context.Context, userID string) ([]store.AccountReconciliation, error)
}

type LedgerStore interface {
	Insert(ctx context.Context, tx store.Execer, input store.CreditTransactionInput) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]store.CreditTransaction, error)
	ReconcileApplications(ctx context.Context) ([]store.ApplicationReconciliation, error)
}

type TaskStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TaskInput) error
	GetByID(ctx context.Context, taskID string) (store.Task, error)
	GetForUpdate(ctx context.Context, tx store.Getter, taskID string) (store.Task, error)
	UpdateStatus(ctx context.Context, tx store.Execer, taskID, status string) error
}

type ApplicationStore interface {
	Create(ctx context.Context, tx store.Execer, app store.Application) error
	GetByID(ctx context.Context, applicationID string) (store.Application, error)
	GetForUpdate(ctx context.Context, tx store.Getter, applicationID string) (store.Application, error)
	Update(ctx context.Context, tx store.Execer, app store.Application) error
	ListByTask(ctx context.Context, taskID string) ([]store.Application, error)
	ListByWorker(ctx context.Context, workerID string) ([]store.Application, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data map[string]string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type EventSink interface {
	Emit(event events.Event)
}
