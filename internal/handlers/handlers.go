package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"taskmarket/internal/db"
	"taskmarket/internal/money"
	"taskmarket/internal/services"
	"taskmarket/internal/validator"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

// serviceError maps a domain failure onto a status and a stable error code.
func serviceError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, services.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, services.ErrInsufficientCredit):
		return http.StatusPaymentRequired, "insufficient_credit"
	case errors.Is(err, services.ErrTaskClosed):
		return http.StatusConflict, "task_closed"
	case errors.Is(err, services.ErrDuplicateApplication):
		return http.StatusConflict, "duplicate_application"
	case errors.Is(err, services.ErrDuplicateTopUp):
		return http.StatusConflict, "duplicate_top_up"
	case errors.Is(err, services.ErrInvalidPrice), errors.Is(err, money.ErrInvalidAmount), errors.Is(err, money.ErrTooManyDecimals),
		errors.Is(err, money.ErrPriceTooLarge), errors.Is(err, money.ErrCreditOverflow):
		return http.StatusBadRequest, "invalid_price"
	case errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, services.ErrSelfHire):
		return http.StatusBadRequest, "self_hire"
	case errors.Is(err, services.ErrInvalidTask):
		return http.StatusBadRequest, "invalid_task"
	case errors.Is(err, services.ErrMissingTopUpReference):
		return http.StatusBadRequest, "missing_reference"
	case errors.Is(err, validator.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email"
	case errors.Is(err, validator.ErrInvalidUsername):
		return http.StatusBadRequest, "invalid_username"
	case errors.Is(err, validator.ErrInvalidPassword):
		return http.StatusBadRequest, "invalid_password"
	case db.IsUniqueViolation(err):
		return http.StatusConflict, "duplicate_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := serviceError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	respondError(w, status, code)
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// page reads ?limit and 1-based ?page.
func page(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	return limit, (parseInt(query.Get("page"), 1) - 1) * limit
}
