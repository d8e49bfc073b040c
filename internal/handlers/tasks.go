package handlers

import (
	"net/http"
	"strings"

	"taskmarket/internal/middleware"
	"taskmarket/internal/models"
	"taskmarket/internal/money"
	"taskmarket/internal/services"

	"github.com/go-chi/chi/v5"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.tasks.Create(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, models.NewTask(task))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewTask(task))
}

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	apps, err := h.offers.ListForTask(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewApplications(apps))
}

type applyRequest struct {
	Message       *string `json:"message"`
	ProposedPrice *string `json:"proposed_price"`
}

// Apply is the worker's side of opening a negotiation; a price is optional.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req applyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	apply := services.ApplyRequest{TaskID: chi.URLParam(r, "id"), WorkerID: userID}
	if req.Message != nil {
		if message := strings.TrimSpace(*req.Message); message != "" {
			apply.Message = &message
		}
	}
	if req.ProposedPrice != nil {
		price, err := money.ParsePrice(*req.ProposedPrice)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		apply.ProposedPrice = &price
	}
	app, err := h.offers.Apply(r.Context(), apply)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, models.NewApplication(app))
}

type hireRequest struct {
	WorkerID string `json:"worker_id"`
	Price    string `json:"price"`
}

// Hire is the poster offering a price directly; the worker's credits are
// reserved immediately.
func (h *Handler) Hire(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req hireRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WorkerID == "" {
		respondError(w, http.StatusBadRequest, "worker_id is required")
		return
	}
	price, err := money.ParsePrice(req.Price)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.offers.Hire(r.Context(), services.HireRequest{
		TaskID:   chi.URLParam(r, "id"),
		PosterID: userID,
		WorkerID: req.WorkerID,
		Price:    price,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, models.NewApplication(app))
}
