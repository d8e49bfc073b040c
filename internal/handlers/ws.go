package handlers

import (
	"net/http"

	"taskmarket/internal/middleware"
	"taskmarket/internal/money"
	"taskmarket/internal/websocket"
)

// WSNotifications streams balance and application updates. The current
// balance is pushed first so clients need no separate fetch.
func (h *Handler) WSNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var greeting *websocket.BalanceUpdate
	if account, err := h.ledger.BalanceForUser(r.Context(), userID); err == nil {
		greeting = &websocket.BalanceUpdate{AccountID: account.ID, Balance: money.FormatCredits(account.Balance)}
	} else {
		h.logger.Warn("no balance for websocket greeting", "user_id", userID, "error", err)
	}
	websocket.ServeWS(w, r, h.upgrader, h.hub, userID, greeting)
}
