package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskmarket/internal/db"
	"taskmarket/internal/events"
	"taskmarket/internal/money"
	"taskmarket/internal/negotiation"
	"taskmarket/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// OfferService runs every negotiation operation as one transaction: lock the
// application, check the move, persist it, reconcile the worker's
// reservation. Events go out only after commit.
type OfferService struct {
	txRunner     db.TxRunner
	tasks        TaskStore
	applications ApplicationStore
	accounts     AccountStore
	reservations *ReservationEngine
	audit        AuditStore
	events       EventSink
	unitValue    decimal.Decimal
	logger       *slog.Logger
	now          func() time.Time
}

func NewOfferService(txRunner db.TxRunner, tasks TaskStore, applications ApplicationStore, accounts AccountStore, reservations *ReservationEngine, audit AuditStore, sink EventSink, unitValue decimal.Decimal, logger *slog.Logger) *OfferService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfferService{
		txRunner:     txRunner,
		tasks:        tasks,
		applications: applications,
		accounts:     accounts,
		reservations: reservations,
		audit:        audit,
		events:       sink,
		unitValue:    unitValue,
		logger:       logger,
		now:          time.Now,
	}
}

type ApplyRequest struct {
	TaskID        string
	WorkerID      string
	Message       *string
	ProposedPrice *decimal.Decimal
}

type HireRequest struct {
	TaskID   string
	PosterID string
	WorkerID string
	Price    decimal.Decimal
}

// outcome is what a committed operation reports to logging and events.
type outcome struct {
	app         store.Application
	from        negotiation.Status
	action      negotiation.Action
	actorID     string
	reservation Reservation
}

func (s *OfferService) Apply(ctx context.Context, req ApplyRequest) (store.Application, error) {
	if req.ProposedPrice != nil {
		if err := validatePrice(*req.ProposedPrice); err != nil {
			return store.Application{}, err
		}
	}
	var result outcome
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		task, err := s.lockOpenTask(ctx, tx, req.TaskID)
		if err != nil {
			return err
		}
		if task.PosterID == req.WorkerID {
			return ErrSelfHire
		}
		status, err := negotiation.Transition(negotiation.Snapshot{}, negotiation.ActionApply, negotiation.PartyWorker)
		if err != nil {
			return err
		}
		app := store.Application{
			ID:       uuid.NewString(),
			TaskID:   task.ID,
			PosterID: task.PosterID,
			WorkerID: req.WorkerID,
			Status:   status,
			Message:  req.Message,
		}
		if req.ProposedPrice != nil {
			app.ProposedPrice = decimal.NewNullDecimal(*req.ProposedPrice)
			app.LastProposedBy = negotiation.PartyWorker
		}
		if err := s.applications.Create(ctx, tx, app); err != nil {
			return err
		}
		app.Version = 1
		if err := s.logTransition(ctx, tx, req.WorkerID, negotiation.ActionApply, negotiation.StatusNone, app); err != nil {
			return err
		}
		result = outcome{app: app, from: negotiation.StatusNone, action: negotiation.ActionApply, actorID: req.WorkerID}
		return nil
	})
	if err != nil {
		return store.Application{}, s.translate(err)
	}
	s.committed(result)
	return result.app, nil
}

// Hire opens a direct offer and reserves its price against the worker's
// account in the same transaction.
func (s *OfferService) Hire(ctx context.Context, req HireRequest) (store.Application, error) {
	if err := validatePrice(req.Price); err != nil {
		return store.Application{}, err
	}
	if req.PosterID == req.WorkerID {
		return store.Application{}, ErrSelfHire
	}
	var result outcome
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		task, err := s.lockOpenTask(ctx, tx, req.TaskID)
		if err != nil {
			return err
		}
		if task.PosterID != req.PosterID {
			return ErrForbidden
		}
		status, err := negotiation.Transition(negotiation.Snapshot{}, negotiation.ActionHire, negotiation.PartyPoster)
		if err != nil {
			return err
		}
		worker, err := s.workerAccount(ctx, tx, req.WorkerID)
		if err != nil {
			return err
		}
		app := store.Application{
			ID:             uuid.NewString(),
			TaskID:         task.ID,
			PosterID:       task.PosterID,
			WorkerID:       req.WorkerID,
			Status:         status,
			ProposedPrice:  decimal.NewNullDecimal(req.Price),
			LastProposedBy: negotiation.PartyPoster,
		}
		app.ChargedCredits, err = s.requiredCredits(status, app.ProposedPrice)
		if err != nil {
			return err
		}
		if err := s.applications.Create(ctx, tx, app); err != nil {
			return err
		}
		app.Version = 1
		if err := s.logTransition(ctx, tx, req.PosterID, negotiation.ActionHire, negotiation.StatusNone, app); err != nil {
			return err
		}
		reservation, err := s.reservations.Reconcile(ctx, tx, worker.ID, app.ID, 0, app.ChargedCredits)
		if err != nil {
			return err
		}
		result = outcome{app: app, from: negotiation.StatusNone, action: negotiation.ActionHire, actorID: req.PosterID, reservation: reservation}
		return nil
	})
	if err != nil {
		return store.Application{}, s.translate(err)
	}
	s.committed(result)
	return result.app, nil
}

// ProposePrice sets a new price on the table. Either party may propose,
// including twice in a row; the proposer can then not accept it.
func (s *OfferService) ProposePrice(ctx context.Context, applicationID, actorID string, price decimal.Decimal) (store.Application, error) {
	if err := validatePrice(price); err != nil {
		return store.Application{}, err
	}
	return s.transition(ctx, applicationID, actorID, negotiation.ActionPropose, false, func(_ context.Context, _ *sqlx.Tx, app *store.Application, party negotiation.Party) error {
		app.ProposedPrice = decimal.NewNullDecimal(price)
		app.LastProposedBy = party
		return nil
	})
}

// Accept fixes the current price. It fails with ErrInsufficientCredit if the
// worker can no longer cover the final reservation.
func (s *OfferService) Accept(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return s.transition(ctx, applicationID, actorID, negotiation.ActionAccept, false, func(ctx context.Context, tx *sqlx.Tx, app *store.Application, _ negotiation.Party) error {
		if _, err := s.lockOpenTask(ctx, tx, app.TaskID); err != nil {
			return err
		}
		if err := s.tasks.UpdateStatus(ctx, tx, app.TaskID, store.TaskAssigned); err != nil {
			return err
		}
		selected := s.now().UTC()
		app.SelectedAt = &selected
		return nil
	})
}

func (s *OfferService) Decline(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return s.transition(ctx, applicationID, actorID, negotiation.ActionDecline, false, nil)
}

func (s *OfferService) Cancel(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return s.transition(ctx, applicationID, actorID, negotiation.ActionCancel, false, nil)
}

// Remove drops a hired worker and reopens the task.
func (s *OfferService) Remove(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	return s.transition(ctx, applicationID, actorID, negotiation.ActionRemove, false, s.reopenTask)
}

// AdminRemove performs Remove on the poster's behalf. The audit row and
// event name the admin as the actor.
func (s *OfferService) AdminRemove(ctx context.Context, applicationID, adminID string) (store.Application, error) {
	return s.transition(ctx, applicationID, adminID, negotiation.ActionRemove, true, s.reopenTask)
}

func (s *OfferService) reopenTask(ctx context.Context, tx *sqlx.Tx, app *store.Application, _ negotiation.Party) error {
	if _, err := s.tasks.GetForUpdate(ctx, tx, app.TaskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return s.tasks.UpdateStatus(ctx, tx, app.TaskID, store.TaskOpen)
}

// Get returns an application visible to its poster or worker.
func (s *OfferService) Get(ctx context.Context, applicationID, actorID string) (store.Application, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Application{}, ErrNotFound
		}
		return store.Application{}, err
	}
	if negotiation.PartyOf(actorID, app.PosterID, app.WorkerID) == negotiation.PartyNone {
		return store.Application{}, ErrForbidden
	}
	return app, nil
}

// ListForTask returns every application to the poster and only the caller's
// own application to anyone else.
func (s *OfferService) ListForTask(ctx context.Context, taskID, actorID string) ([]store.Application, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	apps, err := s.applications.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PosterID == actorID {
		return apps, nil
	}
	visible := make([]store.Application, 0, 1)
	for _, app := range apps {
		if app.WorkerID == actorID {
			visible = append(visible, app)
		}
	}
	return visible, nil
}

// ListMine returns the applications the caller holds as a worker.
func (s *OfferService) ListMine(ctx context.Context, workerID string) ([]store.Application, error) {
	return s.applications.ListByWorker(ctx, workerID)
}

type mutateFunc func(ctx context.Context, tx *sqlx.Tx, app *store.Application, party negotiation.Party) error

func (s *OfferService) transition(ctx context.Context, applicationID, actorID string, action negotiation.Action, asPoster bool, mutate mutateFunc) (store.Application, error) {
	var result outcome
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.applications.GetForUpdate(ctx, tx, applicationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		party := negotiation.PartyOf(actorID, current.PosterID, current.WorkerID)
		if asPoster {
			party = negotiation.PartyPoster
		}
		if party == negotiation.PartyNone {
			return ErrForbidden
		}
		to, err := negotiation.Transition(current.Snapshot(), action, party)
		if err != nil {
			return err
		}
		next := current
		next.Status = to
		if mutate != nil {
			if err := mutate(ctx, tx, &next, party); err != nil {
				return err
			}
		}
		next.ChargedCredits, err = s.requiredCredits(to, next.ProposedPrice)
		if err != nil {
			return err
		}
		worker, err := s.workerAccount(ctx, tx, current.WorkerID)
		if err != nil {
			return err
		}
		if err := s.applications.Update(ctx, tx, next); err != nil {
			return err
		}
		next.Version = current.Version + 1
		if err := s.logTransition(ctx, tx, actorID, action, current.Status, next); err != nil {
			return err
		}
		reservation, err := s.reservations.Reconcile(ctx, tx, worker.ID, current.ID, current.ChargedCredits, next.ChargedCredits)
		if err != nil {
			return err
		}
		result = outcome{app: next, from: current.Status, action: action, actorID: actorID, reservation: reservation}
		return nil
	})
	if err != nil {
		return store.Application{}, s.translate(err)
	}
	s.committed(result)
	return result.app, nil
}

// requiredCredits is the reservation an application must hold in status.
func (s *OfferService) requiredCredits(status negotiation.Status, price decimal.NullDecimal) (int64, error) {
	if !status.Reserving() || !price.Valid {
		return 0, nil
	}
	credits, err := money.RequiredCredits(price.Decimal, s.unitValue)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	return credits, nil
}

func (s *OfferService) lockOpenTask(ctx context.Context, tx *sqlx.Tx, taskID string) (store.Task, error) {
	task, err := s.tasks.GetForUpdate(ctx, tx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Task{}, ErrNotFound
		}
		return store.Task{}, err
	}
	if task.Status != store.TaskOpen {
		return store.Task{}, ErrTaskClosed
	}
	return task, nil
}

func (s *OfferService) workerAccount(ctx context.Context, tx *sqlx.Tx, workerID string) (store.Account, error) {
	account, err := s.accounts.GetByUserTx(ctx, tx, workerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, ErrNotFound
		}
		return store.Account{}, err
	}
	return account, nil
}

func (s *OfferService) logTransition(ctx context.Context, tx *sqlx.Tx, actorID string, action negotiation.Action, from negotiation.Status, app store.Application) error {
	data := map[string]string{
		"task_id":         app.TaskID,
		"from":            string(from),
		"to":              string(app.Status),
		"charged_credits": money.FormatCredits(app.ChargedCredits),
	}
	if app.ProposedPrice.Valid {
		data["price"] = money.FormatPrice(app.ProposedPrice.Decimal)
	}
	return s.audit.Log(ctx, tx, actorID, "application."+string(action), "application", app.ID, data)
}

func (s *OfferService) translate(err error) error {
	if db.IsUniqueViolation(err) {
		return ErrDuplicateApplication
	}
	return err
}

func (s *OfferService) committed(o outcome) {
	s.logger.Info("application transition",
		"application_id", o.app.ID,
		"action", string(o.action),
		"actor_id", o.actorID,
		"from", string(o.from),
		"to", string(o.app.Status),
		"charged_credits", o.app.ChargedCredits,
		"delta", o.reservation.Delta,
	)
	if s.events == nil {
		return
	}
	event := events.Event{
		ApplicationID:  o.app.ID,
		TaskID:         o.app.TaskID,
		FromStatus:     string(o.from),
		ToStatus:       string(o.app.Status),
		ActorID:        o.actorID,
		PosterID:       o.app.PosterID,
		WorkerID:       o.app.WorkerID,
		ChargedCredits: o.app.ChargedCredits,
		OccurredAt:     s.now().UTC(),
	}
	if o.app.ProposedPrice.Valid {
		event.Price = money.FormatPrice(o.app.ProposedPrice.Decimal)
	}
	if o.reservation.Moved() {
		balance := o.reservation.Balance
		event.WorkerAccountID = o.reservation.AccountID
		event.WorkerBalance = &balance
	}
	s.events.Emit(event)
}

func validatePrice(price decimal.Decimal) error {
	if err := money.CheckPrice(price); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	return nil
}
