package handlers

import (
	"net/http"

	"taskmarket/internal/middleware"
	"taskmarket/internal/models"
	"taskmarket/internal/money"
)

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.ledger.BalanceForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccount(account))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := page(r)
	rows, err := h.ledger.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewCreditTransactions(rows))
}

// SelfCheck lets a user confirm their balance matches their own history.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	row, err := h.ledger.SelfCheck(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id":     row.AccountID,
		"stored_balance": money.FormatCredits(row.StoredBalance),
		"ledger_balance": money.FormatCredits(row.LedgerBalance),
		"difference":     money.FormatCredits(row.Difference),
		"consistent":     row.Difference == 0,
	})
}
