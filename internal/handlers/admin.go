package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"taskmarket/internal/middleware"
	"taskmarket/internal/models"
	"taskmarket/internal/money"
	"taskmarket/internal/store"
	"taskmarket/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

var grantableRoles = map[string]bool{
	store.RoleViewLedger:    true,
	store.RoleManageOffers:  true,
	store.RoleViewAuditLogs: true,
}

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

// PromoteAdmin makes a user a regular admin. Identifier is an email when it
// contains "@", otherwise a username.
func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req promoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		respondError(w, http.StatusBadRequest, "identifier is required")
		return
	}
	var target store.User
	var err error
	if strings.Contains(identifier, "@") {
		target, err = h.users.GetByEmail(r.Context(), validator.NormalizeEmail(identifier))
	} else {
		target, err = h.users.GetByUsername(r.Context(), identifier)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.fail(w, r, err)
		return
	}
	status, err := h.admin.Lookup(r.Context(), target.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if status.IsAdmin {
		respondError(w, http.StatusConflict, "already an admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, target.ID, false, &actorID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, actorID, "admin.promote", "admin", target.ID, map[string]string{
			"target_user_id": target.ID,
		})
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted", "user_id": target.ID})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req grantRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AdminUserID == "" || !grantableRoles[req.Role] {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	target, err := h.admin.Lookup(r.Context(), req.AdminUserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !target.IsAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if target.IsSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, actorID, "admin.grant_role", "admin_role", req.AdminUserID, map[string]string{
			"role": req.Role,
		})
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	rows, err := h.audit.List(r.Context(), r.URL.Query().Get("entity_id"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile reports every account and application whose stored figures
// disagree with the transaction log. An empty report means the books balance.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Audit(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"consistent":   report.Consistent(),
		"accounts":     report.Accounts,
		"applications": report.Applications,
	})
}

func (h *Handler) AdminListAccounts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.accounts.ListAllWithUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		username := ""
		if row.Username != nil {
			username = *row.Username
		}
		email := ""
		if row.Email != nil {
			email = *row.Email
		}
		out = append(out, map[string]any{
			"account_id": row.ID,
			"user_id":    row.UserID,
			"balance":    money.FormatCredits(row.Balance),
			"username":   username,
			"email":      email,
			"created_at": row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// AdminRemoveApplication withdraws an application on the poster's behalf
// and refunds whatever the worker had reserved.
func (h *Handler) AdminRemoveApplication(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	app, err := h.offers.AdminRemove(r.Context(), chi.URLParam(r, "id"), adminID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewApplication(app))
}
