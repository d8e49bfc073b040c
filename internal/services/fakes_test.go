package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"taskmarket/internal/db"
	"taskmarket/internal/events"
	"taskmarket/internal/store"
	"taskmarket/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// memDB is an in-memory stand-in for the schema. memTxRunner serializes
// transactions and restores the previous state when fn fails, which is
// the isolation the services rely on from PostgreSQL.
type memDB struct {
	mu           sync.Mutex
	accounts     map[string]store.Account
	transactions []store.CreditTransactionInput
	tasks        map[string]store.Task
	applications map[string]store.Application
	audit        []auditRow
	order        []string
}

type auditRow struct {
	actorID  string
	action   string
	entityID string
	data     map[string]string
}

type memSnapshot struct {
	accounts     map[string]store.Account
	transactions []store.CreditTransactionInput
	tasks        map[string]store.Task
	applications map[string]store.Application
	audit        []auditRow
	order        []string
}

func newMemDB() *memDB {
	return &memDB{
		accounts:     map[string]store.Account{},
		tasks:        map[string]store.Task{},
		applications: map[string]store.Application{},
	}
}

func (m *memDB) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		accounts:     make(map[string]store.Account, len(m.accounts)),
		transactions: append([]store.CreditTransactionInput(nil), m.transactions...),
		tasks:        make(map[string]store.Task, len(m.tasks)),
		applications: make(map[string]store.Application, len(m.applications)),
		audit:        append([]auditRow(nil), m.audit...),
		order:        append([]string(nil), m.order...),
	}
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.tasks {
		s.tasks[k] = v
	}
	for k, v := range m.applications {
		s.applications[k] = v
	}
	return s
}

func (m *memDB) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = s.accounts
	m.transactions = s.transactions
	m.tasks = s.tasks
	m.applications = s.applications
	m.audit = s.audit
	m.order = s.order
}

type memTxRunner struct {
	db *memDB
	mu sync.Mutex
}

func (r *memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	before := r.db.snapshot()
	if err := fn(nil); err != nil {
		r.db.restore(before)
		return err
	}
	return nil
}

type memAccounts struct{ db *memDB }

func (a memAccounts) GetByID(_ context.Context, accountID string) (store.Account, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	account, ok := a.db.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (a memAccounts) GetByUser(_ context.Context, userID string) (store.Account, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	for _, account := range a.db.accounts {
		if account.UserID == userID {
			return account, nil
		}
	}
	return store.Account{}, sql.ErrNoRows
}

func (a memAccounts) GetByUserTx(ctx context.Context, _ store.Getter, userID string) (store.Account, error) {
	return a.GetByUser(ctx, userID)
}

func (a memAccounts) Credit(_ context.Context, _ store.Getter, accountID string, amount int64) (int64, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	account, ok := a.db.accounts[accountID]
	if !ok {
		return 0, sql.ErrNoRows
	}
	account.Balance += amount
	a.db.accounts[accountID] = account
	return account.Balance, nil
}

func (a memAccounts) DebitIfSufficient(_ context.Context, _ store.Getter, accountID string, amount int64) (int64, bool, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	account, ok := a.db.accounts[accountID]
	if !ok {
		return 0, false, sql.ErrNoRows
	}
	if account.Balance < amount {
		return 0, false, nil
	}
	account.Balance -= amount
	a.db.accounts[accountID] = account
	return account.Balance, true, nil
}

func (a memAccounts) Reconcile(_ context.Context, userID string) ([]store.AccountReconciliation, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	var rows []store.AccountReconciliation
	for _, account := range a.db.accounts {
		if userID != "" && account.UserID != userID {
			continue
		}
		var sum int64
		for _, t := range a.db.transactions {
			if t.AccountID != account.ID {
				continue
			}
			if t.Kind == store.KindSpent {
				sum -= t.Amount
			} else {
				sum += t.Amount
			}
		}
		rows = append(rows, store.AccountReconciliation{
			AccountID:     account.ID,
			UserID:        account.UserID,
			StoredBalance: account.Balance,
			LedgerBalance: sum,
			Difference:    account.Balance - sum,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AccountID < rows[j].AccountID })
	return rows, nil
}

type memLedger struct{ db *memDB }

func (l memLedger) Insert(_ context.Context, _ store.Execer, input store.CreditTransactionInput) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if input.ExternalRef != nil {
		for _, t := range l.db.transactions {
			if t.ExternalRef != nil && *t.ExternalRef == *input.ExternalRef {
				return &pq.Error{Code: "23505"}
			}
		}
	}
	l.db.transactions = append(l.db.transactions, input)
	return nil
}

func (l memLedger) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]store.CreditTransaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var rows []store.CreditTransaction
	for i := len(l.db.transactions) - 1; i >= 0; i-- {
		t := l.db.transactions[i]
		if t.AccountID != accountID {
			continue
		}
		rows = append(rows, store.CreditTransaction{
			ID:            t.ID,
			AccountID:     t.AccountID,
			Amount:        t.Amount,
			Kind:          t.Kind,
			Description:   t.Description,
			ApplicationID: t.ApplicationID,
			ExternalRef:   t.ExternalRef,
			BalanceAfter:  t.BalanceAfter,
		})
	}
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (l memLedger) ReconcileApplications(_ context.Context) ([]store.ApplicationReconciliation, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var rows []store.ApplicationReconciliation
	for _, id := range l.db.order {
		app := l.db.applications[id]
		charged := netCharged(l.db.transactions, id)
		if charged != app.ChargedCredits {
			rows = append(rows, store.ApplicationReconciliation{
				ApplicationID:  id,
				Status:         string(app.Status),
				ChargedCredits: app.ChargedCredits,
				LedgerCharged:  charged,
				Difference:     app.ChargedCredits - charged,
			})
		}
	}
	return rows, nil
}

func netCharged(transactions []store.CreditTransactionInput, applicationID string) int64 {
	var sum int64
	for _, t := range transactions {
		if t.ApplicationID == nil || *t.ApplicationID != applicationID {
			continue
		}
		switch t.Kind {
		case store.KindSpent:
			sum += t.Amount
		case store.KindRefund:
			sum -= t.Amount
		}
	}
	return sum
}

type memTasks struct{ db *memDB }

func (s memTasks) Create(_ context.Context, _ store.Execer, input store.TaskInput) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.tasks[input.ID] = store.Task{
		ID:          input.ID,
		PosterID:    input.PosterID,
		Title:       input.Title,
		Description: input.Description,
		Status:      store.TaskOpen,
	}
	return nil
}

func (s memTasks) GetByID(_ context.Context, taskID string) (store.Task, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	task, ok := s.db.tasks[taskID]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return task, nil
}

func (s memTasks) GetForUpdate(ctx context.Context, _ store.Getter, taskID string) (store.Task, error) {
	return s.GetByID(ctx, taskID)
}

func (s memTasks) UpdateStatus(_ context.Context, _ store.Execer, taskID, status string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	task := s.db.tasks[taskID]
	task.Status = status
	s.db.tasks[taskID] = task
	return nil
}

type memApplications struct{ db *memDB }

func (s memApplications) Create(_ context.Context, _ store.Execer, app store.Application) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.applications {
		if existing.TaskID == app.TaskID && existing.WorkerID == app.WorkerID {
			return &pq.Error{Code: "23505"}
		}
	}
	app.Version = 1
	s.db.applications[app.ID] = app
	s.db.order = append(s.db.order, app.ID)
	return nil
}

func (s memApplications) GetByID(_ context.Context, applicationID string) (store.Application, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	app, ok := s.db.applications[applicationID]
	if !ok {
		return store.Application{}, sql.ErrNoRows
	}
	return app, nil
}

func (s memApplications) GetForUpdate(ctx context.Context, _ store.Getter, applicationID string) (store.Application, error) {
	return s.GetByID(ctx, applicationID)
}

func (s memApplications) Update(_ context.Context, _ store.Execer, app store.Application) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	current, ok := s.db.applications[app.ID]
	if !ok || current.Version != app.Version {
		return db.ErrConcurrentModification
	}
	app.Version++
	s.db.applications[app.ID] = app
	return nil
}

func (s memApplications) ListByTask(_ context.Context, taskID string) ([]store.Application, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var rows []store.Application
	for _, id := range s.db.order {
		if app := s.db.applications[id]; app.TaskID == taskID {
			rows = append(rows, app)
		}
	}
	return rows, nil
}

func (s memApplications) ListByWorker(_ context.Context, workerID string) ([]store.Application, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var rows []store.Application
	for _, id := range s.db.order {
		if app := s.db.applications[id]; app.WorkerID == workerID {
			rows = append(rows, app)
		}
	}
	return rows, nil
}

type memAudit struct{ db *memDB }

func (s memAudit) Log(_ context.Context, _ store.Execer, actorID, action, _, entityID string, data map[string]string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, auditRow{actorID: actorID, action: action, entityID: entityID, data: data})
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

type recordingHub struct {
	mu      sync.Mutex
	updates map[string][]websocket.BalanceUpdate
}

func (h *recordingHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.updates == nil {
		h.updates = map[string][]websocket.BalanceUpdate{}
	}
	h.updates[userID] = append(h.updates[userID], update)
}

type harness struct {
	db       *memDB
	runner   *memTxRunner
	ledger   *CreditLedger
	offers   *OfferService
	tasks    *TaskService
	sink     *recordingSink
	hub      *recordingHub
	accounts memAccounts
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := newMemDB()
	runner := &memTxRunner{db: mem}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := &recordingHub{}
	sink := &recordingSink{}
	accounts := memAccounts{db: mem}
	ledger := NewCreditLedger(runner, accounts, memLedger{db: mem}, hub, logger)
	offers := NewOfferService(runner, memTasks{db: mem}, memApplications{db: mem}, accounts,
		NewReservationEngine(ledger), memAudit{db: mem}, sink, decimal.NewFromInt(100), logger)
	return &harness{
		db:       mem,
		runner:   runner,
		ledger:   ledger,
		offers:   offers,
		tasks:    NewTaskService(runner, memTasks{db: mem}, memAudit{db: mem}),
		sink:     sink,
		hub:      hub,
		accounts: accounts,
	}
}

// user creates an account funded through a purchase so the log stays
// reconcilable.
func (h *harness) user(t *testing.T, userID string, balance int64) {
	t.Helper()
	h.db.mu.Lock()
	h.db.accounts["acc-"+userID] = store.Account{ID: "acc-" + userID, UserID: userID}
	h.db.mu.Unlock()
	if balance > 0 {
		if _, err := h.ledger.TopUp(context.Background(), TopUpRequest{UserID: userID, Amount: balance, Reference: "seed-" + userID}); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
}

func (h *harness) task(t *testing.T, posterID string) string {
	t.Helper()
	task, err := h.tasks.Create(context.Background(), posterID, "Assemble shelves", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task.ID
}

func (h *harness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	account, err := h.ledger.BalanceForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return account.Balance
}

func (h *harness) transactionCount() int {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	return len(h.db.transactions)
}

func (h *harness) application(t *testing.T, id string) store.Application {
	t.Helper()
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	app, ok := h.db.applications[id]
	if !ok {
		t.Fatalf("application %s not found", id)
	}
	return app
}
