package handlers

import (
	"errors"
	"net/http"

	"taskmarket/internal/money"
	"taskmarket/internal/services"
)

type paymentCallbackRequest struct {
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// PaymentCallback credits a confirmed purchase. The provider retries until
// it sees a 2xx, so a replayed reference is acknowledged without crediting.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req paymentCallbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	amount, err := money.ParseCredits(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.ledger.TopUp(r.Context(), services.TopUpRequest{
		UserID:    req.UserID,
		Amount:    amount,
		Reference: req.Reference,
	})
	if errors.Is(err, services.ErrDuplicateTopUp) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "already_processed"})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "credited",
		"account_id": result.AccountID,
		"balance":    money.FormatCredits(result.Balance),
	})
}
