package handlers

import (
	"context"
	"net/http"

	"taskmarket/internal/middleware"
	"taskmarket/internal/models"
	"taskmarket/internal/money"
	"taskmarket/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	app, err := h.offers.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewApplication(app))
}

func (h *Handler) ListMyApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	apps, err := h.offers.ListMine(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewApplications(apps))
}

type proposeRequest struct {
	Price string `json:"price"`
}

func (h *Handler) ProposePrice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req proposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	price, err := money.ParsePrice(req.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.offers.ProposePrice(r.Context(), chi.URLParam(r, "id"), userID, price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewApplication(app))
}

type transitionFunc func(ctx context.Context, applicationID, actorID string) (store.Application, error)

// transitionHandler serves the body-less negotiation moves.
func (h *Handler) transitionHandler(move transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		app, err := move(r.Context(), chi.URLParam(r, "id"), userID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, models.NewApplication(app))
	}
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.offers.Accept)(w, r)
}

func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.offers.Decline)(w, r)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.offers.Cancel)(w, r)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.offers.Remove)(w, r)
}
