package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskmarket/internal/auth"
	"taskmarket/internal/config"
	"taskmarket/internal/services"
	"taskmarket/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const testSecret = "secret"

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn    func(ctx context.Context, email string) (store.User, error)
	getByUsernameFn func(ctx context.Context, username string) (store.User, error)
	getByIDFn       func(ctx context.Context, userID string) (store.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (store.User, error) {
	if s.getByEmailFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (store.User, error) {
	if s.getByUsernameFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (store.User, error) {
	if s.getByIDFn == nil {
		return store.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

type stubAccountStore struct {
	createFn           func(ctx context.Context, tx store.Execer, id, userID string) error
	listAllWithUsersFn func(ctx context.Context) ([]store.AccountWithUser, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, id, userID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userID)
}

func (s stubAccountStore) ListAllWithUsers(ctx context.Context) ([]store.AccountWithUser, error) {
	if s.listAllWithUsersFn == nil {
		return nil, nil
	}
	return s.listAllWithUsersFn(ctx)
}

type stubAdminStore struct {
	lookupFn      func(ctx context.Context, userID string) (store.AdminStatus, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context, tx store.Getter) (bool, error)
}

func (s stubAdminStore) Lookup(ctx context.Context, userID string) (store.AdminStatus, error) {
	if s.lookupFn == nil {
		return store.AdminStatus{}, nil
	}
	return s.lookupFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context, tx store.Getter) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx, tx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data map[string]string) error
	listFn func(ctx context.Context, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data map[string]string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, entityID string, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, entityID, limit, offset)
}

type stubLedger struct {
	creditFn         func(ctx context.Context, tx store.Tx, e services.Entry) (int64, error)
	balanceForUserFn func(ctx context.Context, userID string) (store.Account, error)
	historyFn        func(ctx context.Context, userID string, limit, offset int) ([]store.CreditTransaction, error)
	selfCheckFn      func(ctx context.Context, userID string) (store.AccountReconciliation, error)
	auditFn          func(ctx context.Context) (services.AuditReport, error)
	topUpFn          func(ctx context.Context, req services.TopUpRequest) (services.TopUpResult, error)
}

func (s stubLedger) Credit(ctx context.Context, tx store.Tx, e services.Entry) (int64, error) {
	if s.creditFn == nil {
		return e.Amount, nil
	}
	return s.creditFn(ctx, tx, e)
}

func (s stubLedger) BalanceForUser(ctx context.Context, userID string) (store.Account, error) {
	if s.balanceForUserFn == nil {
		return store.Account{}, services.ErrNotFound
	}
	return s.balanceForUserFn(ctx, userID)
}

func (s stubLedger) History(ctx context.Context, userID string, limit, offset int) ([]store.CreditTransaction, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, userID, limit, offset)
}

func (s stubLedger) SelfCheck(ctx context.Context, userID string) (store.AccountReconciliation, error) {
	if s.selfCheckFn == nil {
		return store.AccountReconciliation{}, services.ErrNotFound
	}
	return s.selfCheckFn(ctx, userID)
}

func (s stubLedger) Audit(ctx context.Context) (services.AuditReport, error) {
	if s.auditFn == nil {
		return services.AuditReport{}, nil
	}
	return s.auditFn(ctx)
}

func (s stubLedger) TopUp(ctx context.Context, req services.TopUpRequest) (services.TopUpResult, error) {
	if s.topUpFn == nil {
		return services.TopUpResult{}, nil
	}
	return s.topUpFn(ctx, req)
}

type moveFn func(ctx context.Context, applicationID, actorID string) (store.Application, error)

type stubOffers struct {
	applyFn       func(ctx context.Context, req services.ApplyRequest) (store.Application, error)
	hireFn        func(ctx context.Context, req services.HireRequest) (store.Application, error)
	proposeFn     func(ctx context.Context, applicationID, actorID string, price decimal.Decimal) (store.Application, error)
	acceptFn      moveFn
	declineFn     moveFn
	cancelFn      moveFn
	removeFn      moveFn
	adminRemoveFn moveFn
	getFn         moveFn
	listForTaskFn func(ctx context.Context, taskID, actorID string) ([]store.Application, error)
	listMineFn    func(ctx context.Context, workerID string) ([]store.Application, error)
}

func (s stubOffers) Apply(ctx context.Context, req services.ApplyRequest) (store.Application, error) {
	if s.applyFn == nil {
		return store.Application{}, nil
	}
	return s.applyFn(ctx, req)
}

func (s stubOffers) Hire(ctx context.Context, req services.HireRequest) (store.Application, error) {
	if s.hireFn == nil {
		return store.Application{}, nil
	}
	return s.hireFn(ctx, req)
}

func (s stubOffers) ProposePrice(ctx context.Context, applicationID, actorID string, price decimal.Decimal) (store.Application, error) {
	if s.proposeFn == nil {
		return store.Application{}, nil
	}
	return s.proposeFn(ctx, applicationID, actorID, price)
}

func callMove(ctx context.Context, fn moveFn, applicationID, actorID string) (store.Application, error) {
	if fn == nil {
		return store.Application{ID: applicationID}, nil
	}
	return fn(ctx, applicationID, actorID)
}

func (s stubOffers) Accept(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return callMove(ctx, s.acceptFn, applicationID, actorID)
}

func (s stubOffers) Decline(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return callMove(ctx, s.declineFn, applicationID, actorID)
}

func (s stubOffers) Cancel(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return callMove(ctx, s.cancelFn, applicationID, actorID)
}

func (s stubOffers) Remove(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return callMove(ctx, s.removeFn, applicationID, actorID)
}

func (s stubOffers) AdminRemove(ctx context.Context, applicationID, adminID string) (store.Application, error) {
	return callMove(ctx, s.adminRemoveFn, applicationID, adminID)
}

func (s stubOffers) Get(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return callMove(ctx, s.getFn, applicationID, actorID)
}

func (s stubOffers) ListForTask(ctx context.Context, taskID, actorID string) ([]store.Application, error) {
	if s.listForTaskFn == nil {
		return nil, nil
	}
	return s.listForTaskFn(ctx, taskID, actorID)
}

func (s stubOffers) ListMine(ctx context.Context, workerID string) ([]store.Application, error) {
	if s.listMineFn == nil {
		return nil, nil
	}
	return s.listMineFn(ctx, workerID)
}

type stubTasks struct {
	createFn func(ctx context.Context, posterID, title, description string) (store.Task, error)
	getFn    func(ctx context.Context, taskID string) (store.Task, error)
}

func (s stubTasks) Create(ctx context.Context, posterID, title, description string) (store.Task, error) {
	if s.createFn == nil {
		return store.Task{}, nil
	}
	return s.createFn(ctx, posterID, title, description)
}

func (s stubTasks) Get(ctx context.Context, taskID string) (store.Task, error) {
	if s.getFn == nil {
		return store.Task{}, services.ErrNotFound
	}
	return s.getFn(ctx, taskID)
}

func testConfig() config.Config {
	return config.Config{
		AppEnv:               "test",
		Port:                 "0",
		JWTSecret:            testSecret,
		TokenTTL:             time.Minute,
		AllowedOrigins:       "*",
		CreditUnitValue:      decimal.NewFromInt(100),
		PaymentWebhookSecret: "hook-secret",
	}
}

// newTestHandler fills every dependency the test leaves unset with a stub
// holding no behavior.
func newTestHandler(cfg config.Config, runner fakeTxRunner, deps Deps) http.Handler {
	if deps.Users == nil {
		deps.Users = stubUserStore{}
	}
	if deps.Accounts == nil {
		deps.Accounts = stubAccountStore{}
	}
	if deps.Admin == nil {
		deps.Admin = stubAdminStore{}
	}
	if deps.Audit == nil {
		deps.Audit = stubAuditStore{}
	}
	if deps.Ledger == nil {
		deps.Ledger = stubLedger{}
	}
	if deps.Offers == nil {
		deps.Offers = stubOffers{}
	}
	if deps.Tasks == nil {
		deps.Tasks = stubTasks{}
	}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(runner, cfg, deps).Routes()
}

// do sends body as JSON. A non-empty userID is authenticated with a real
// token.
func do(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}
