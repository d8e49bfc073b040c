package services

import (
	"context"
	"fmt"

	"taskmarket/internal/store"
)

// Reservation is the outcome of reconciling an application's charge.
// Balance is the account balance after the ledger call; it is only set when
// Delta is non-zero.
type Reservation struct {
	AccountID string
	Delta     int64
	Balance   int64
}

func (r Reservation) Moved() bool {
	return r.Delta != 0
}

// ReservationEngine turns a target reservation into the single ledger
// operation that moves an application's charge from previous to required.
type ReservationEngine struct {
	ledger *CreditLedger
}

func NewReservationEngine(ledger *CreditLedger) *ReservationEngine {
	return &ReservationEngine{ledger: ledger}
}

// Reconcile debits or refunds the difference between required and previous.
// An insufficient balance returns ErrInsufficientCredit and the caller must
// abort its transaction.
func (e *ReservationEngine) Reconcile(ctx context.Context, tx store.Tx, accountID, applicationID string, previous, required int64) (Reservation, error) {
	if previous < 0 || required < 0 {
		return Reservation{}, ErrInvalidAmount
	}
	delta := required - previous
	switch {
	case delta > 0:
		balance, ok, err := e.ledger.TryDebit(ctx, tx, Entry{
			AccountID:     accountID,
			Amount:        delta,
			Kind:          store.KindSpent,
			Description:   fmt.Sprintf("Reservation for application %s", applicationID),
			ApplicationID: applicationID,
		})
		if err != nil {
			return Reservation{}, err
		}
		if !ok {
			return Reservation{}, fmt.Errorf("%w: %d more credits required", ErrInsufficientCredit, delta)
		}
		return Reservation{AccountID: accountID, Delta: delta, Balance: balance}, nil
	case delta < 0:
		balance, err := e.ledger.Credit(ctx, tx, Entry{
			AccountID:     accountID,
			Amount:        -delta,
			Kind:          store.KindRefund,
			Description:   fmt.Sprintf("Refund for application %s", applicationID),
			ApplicationID: applicationID,
		})
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{AccountID: accountID, Delta: delta, Balance: balance}, nil
	}
	return Reservation{AccountID: accountID}, nil
}
