package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"taskmarket/internal/auth"
	"taskmarket/internal/middleware"
	"taskmarket/internal/models"
	"taskmarket/internal/services"
	"taskmarket/internal/store"
	"taskmarket/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Register creates the user and their credit account together. The first
// user to register becomes the super admin.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = validator.NormalizeEmail(req.Email)
	if err := validator.Registration(req.Username, req.Email, req.Password); err != nil {
		status, code := serviceError(err)
		respondError(w, status, code)
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	ctx := r.Context()
	userID := uuid.NewString()
	accountID := uuid.NewString()
	err = h.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := h.users.Create(ctx, tx, userID, req.Username, req.Email, passwordHash); err != nil {
			return err
		}
		if err := h.accounts.Create(ctx, tx, accountID, userID); err != nil {
			return err
		}
		if bonus := h.cfg.SignupBonusCredits; bonus > 0 {
			if _, err := h.ledger.Credit(ctx, tx, services.Entry{
				AccountID:   accountID,
				Amount:      bonus,
				Kind:        store.KindPurchase,
				Description: "Signup bonus",
				ExternalRef: "signup-" + userID,
			}); err != nil {
				return err
			}
		}
		hasAdmin, err := h.admin.HasAnyAdmin(ctx, tx)
		if err != nil {
			return err
		}
		if !hasAdmin {
			if err := h.admin.CreateAdmin(ctx, tx, userID, true, nil); err != nil {
				return err
			}
		}
		return h.audit.Log(ctx, tx, userID, "register", "user", userID, map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		})
	})
	if err != nil {
		status, code := serviceError(err)
		if code == "duplicate_request" {
			respondError(w, status, "username or email already exists")
			return
		}
		h.fail(w, r, err)
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, userID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{Token: token, UserID: userID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, validator.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.fail(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := h.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return h.audit.Log(ctx, tx, user.ID, "login", "user", user.ID, map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		})
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID})
}

type meResponse struct {
	models.User
	IsAdmin      bool `json:"is_admin"`
	IsSuperAdmin bool `json:"is_super_admin"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.fail(w, r, err)
		return
	}
	status, err := h.admin.Lookup(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, meResponse{
		User:         models.NewUser(user),
		IsAdmin:      status.IsAdmin,
		IsSuperAdmin: status.IsSuper,
	})
}
