// Package models holds the JSON shapes the HTTP API returns. Credits are
// whole numbers rendered as strings; prices keep two decimals.
package models

import (
	"time"

	"taskmarket/internal/money"
	"taskmarket/internal/store"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUser(u store.User) User {
	return User{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewAccount(a store.Account) Account {
	return Account{ID: a.ID, UserID: a.UserID, Balance: money.FormatCredits(a.Balance), UpdatedAt: a.UpdatedAt}
}

type CreditTransaction struct {
	ID            string    `json:"id"`
	Amount        string    `json:"amount"`
	Kind          string    `json:"kind"`
	Description   string    `json:"description"`
	ApplicationID *string   `json:"application_id,omitempty"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewCreditTransactions(rows []store.CreditTransaction) []CreditTransaction {
	out := make([]CreditTransaction, 0, len(rows))
	for _, t := range rows {
		out = append(out, CreditTransaction{
			ID:            t.ID,
			Amount:        money.FormatCredits(t.Amount),
			Kind:          t.Kind,
			Description:   t.Description,
			ApplicationID: t.ApplicationID,
			BalanceAfter:  money.FormatCredits(t.BalanceAfter),
			CreatedAt:     t.CreatedAt,
		})
	}
	return out
}

type Task struct {
	ID          string    `json:"id"`
	PosterID    string    `json:"poster_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewTask(t store.Task) Task {
	return Task{ID: t.ID, PosterID: t.PosterID, Title: t.Title, Description: t.Description, Status: t.Status, CreatedAt: t.CreatedAt}
}

type Application struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"task_id"`
	PosterID       string     `json:"poster_id"`
	WorkerID       string     `json:"worker_id"`
	Status         string     `json:"status"`
	Message        *string    `json:"message,omitempty"`
	ProposedPrice  *string    `json:"proposed_price"`
	LastProposedBy string     `json:"last_proposed_by"`
	ChargedCredits string     `json:"charged_credits"`
	SelectedAt     *time.Time `json:"selected_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func NewApplication(a store.Application) Application {
	out := Application{
		ID:             a.ID,
		TaskID:         a.TaskID,
		PosterID:       a.PosterID,
		WorkerID:       a.WorkerID,
		Status:         string(a.Status),
		Message:        a.Message,
		LastProposedBy: string(a.LastProposedBy),
		ChargedCredits: money.FormatCredits(a.ChargedCredits),
		SelectedAt:     a.SelectedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.ProposedPrice.Valid {
		price := money.FormatPrice(a.ProposedPrice.Decimal)
		out.ProposedPrice = &price
	}
	return out
}

func NewApplications(rows []store.Application) []Application {
	out := make([]Application, 0, len(rows))
	for _, a := range rows {
		out = append(out, NewApplication(a))
	}
	return out
}
