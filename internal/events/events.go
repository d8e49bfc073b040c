// Package events delivers application transition events to collaborators
// outside the request path. Delivery is best-effort: failures are logged
// and never reach the caller that emitted the event.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrEmitterClosed = errors.New("emitter closed")

type Event struct {
	ApplicationID   string    `json:"application_id"`
	TaskID          string    `json:"task_id"`
	FromStatus      string    `json:"from_status"`
	ToStatus        string    `json:"to_status"`
	ActorID         string    `json:"actor_id"`
	PosterID        string    `json:"poster_id"`
	WorkerID        string    `json:"worker_id"`
	Price           string    `json:"price,omitempty"`
	ChargedCredits  int64     `json:"charged_credits"`
	WorkerAccountID string    `json:"worker_account_id,omitempty"`
	WorkerBalance   *int64    `json:"worker_balance,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type Emitter struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEmitter(logger *slog.Logger, timeout time.Duration, notifiers ...Notifier) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Emitter{notifiers: notifiers, timeout: timeout, logger: logger}
}

// Emit hands event to every notifier on a background goroutine and returns
// immediately.
func (e *Emitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("event dropped", "application_id", event.ApplicationID, "to", event.ToStatus, "error", ErrEmitterClosed)
		return
	}
	for _, n := range e.notifiers {
		e.wg.Add(1)
		go e.deliver(n, event)
	}
}

func (e *Emitter) deliver(n Notifier, event Event) {
	defer e.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := safeNotify(ctx, n, event); err != nil {
		e.logger.Warn("event delivery failed",
			"application_id", event.ApplicationID,
			"to", event.ToStatus,
			"notifier", fmt.Sprintf("%T", n),
			"error", err,
		)
	}
}

func safeNotify(ctx context.Context, n Notifier, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Notify(ctx, event)
}

// Close stops accepting events and waits for in-flight deliveries, or for
// ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
