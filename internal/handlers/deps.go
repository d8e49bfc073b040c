package handlers

import (
	"context"

	"taskmarket/internal/services"
	"taskmarket/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByUsername(ctx context.Context, username string) (store.User, error)
	GetByID(ctx context.Context, userID string) (store.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID string) error
	ListAllWithUsers(ctx context.Context) ([]store.AccountWithUser, error)
}

type AdminStore interface {
	Lookup(ctx context.Context, userID string) (store.AdminStatus, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context, tx store.Getter) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data map[string]string) error
	List(ctx context.Context, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

type Ledger interface {
	Credit(ctx context.Context, tx store.Tx, e services.Entry) (int64, error)
	BalanceForUser(ctx context.Context, userID string) (store.Account, error)
	History(ctx context.Context, userID string, limit, offset int) ([]store.CreditTransaction, error)
	SelfCheck(ctx context.Context, userID string) (store.AccountReconciliation, error)
	Audit(ctx context.Context) (services.AuditReport, error)
	TopUp(ctx context.Context, req services.TopUpRequest) (services.TopUpResult, error)
}

type Offers interface {
	Apply(ctx context.Context, req services.ApplyRequest) (store.Application, error)
	Hire(ctx context.Context, req services.HireRequest) (store.Application, error)
	ProposePrice(ctx context.Context, applicationID, actorID string, price decimal.Decimal) (store.Application, error)
	Accept(ctx context.Context, applicationID, actorID string) (store.Application, error)
	Decline(ctx context.Context, applicationID, actorID string) (store.Application, error)
	Cancel(ctx context.Context, applicationID, actorID string) (store.Application, error)
	Remove(ctx context.Context, applicationID, actorID string) (store.Application, error)
	AdminRemove(ctx context.Context, applicationID, adminID string) (store.Application, error)
	Get(ctx context.Context, applicationID, actorID string) (store.Application, error)
	ListForTask(ctx context.Context, taskID, actorID string) ([]store.Application, error)
	ListMine(ctx context.Context, workerID string) ([]store.Application, error)
}

type Tasks interface {
	Create(ctx context.Context, posterID, title, description string) (store.Task, error)
	Get(ctx context.Context, taskID string) (store.Task, error)
}
