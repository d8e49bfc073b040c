package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"taskmarket/internal/config"
	"taskmarket/internal/db"
	"taskmarket/internal/middleware"
	"taskmarket/internal/store"
	"taskmarket/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorilla "github.com/gorilla/websocket"
)

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Users    UserStore
	Accounts AccountStore
	Admin    AdminStore
	Audit    AuditStore
	Ledger   Ledger
	Offers   Offers
	Tasks    Tasks
	Hub      *websocket.Hub
	Logger   *slog.Logger
}

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	users    UserStore
	accounts AccountStore
	admin    AdminStore
	audit    AuditStore
	ledger   Ledger
	offers   Offers
	tasks    Tasks
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

func New(txRunner db.TxRunner, cfg config.Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := deps.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	return &Handler{
		txRunner: txRunner,
		cfg:      cfg,
		users:    deps.Users,
		accounts: deps.Accounts,
		admin:    deps.Admin,
		audit:    deps.Audit,
		ledger:   deps.Ledger,
		offers:   deps.Offers,
		tasks:    deps.Tasks,
		hub:      hub,
		upgrader: websocket.NewUpgrader(allowedOrigins(cfg.AllowedOrigins)),
		logger:   logger,
	}
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticated := middleware.Auth(h.cfg.JWTSecret)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authenticated).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/accounts/me", h.GetBalance)
		r.Get("/accounts/me/transactions", h.ListTransactions)
		r.Get("/accounts/self-check", h.SelfCheck)

		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/{id}", h.GetTask)
		r.Get("/tasks/{id}/applications", h.ListApplications)
		r.Post("/tasks/{id}/applications", h.Apply)
		r.Post("/tasks/{id}/hire", h.Hire)

		r.Get("/applications/mine", h.ListMyApplications)
		r.Get("/applications/{id}", h.GetApplication)
		r.Post("/applications/{id}/propose", h.ProposePrice)
		r.Post("/applications/{id}/accept", h.Accept)
		r.Post("/applications/{id}/decline", h.Decline)
		r.Post("/applications/{id}/cancel", h.Cancel)
		r.Post("/applications/{id}/remove", h.Remove)

		r.Get("/ws/notifications", h.WSNotifications)
	})

	router.With(middleware.RequireWebhookSecret(h.cfg.PaymentWebhookSecret)).Post("/payments/callback", h.PaymentCallback)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewAuditLogs)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewLedger)).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewLedger)).Get("/accounts", h.AdminListAccounts)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageOffers)).Post("/applications/{id}/remove", h.AdminRemoveApplication)
		r.With(middleware.RequireSuperAdmin(h.admin)).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireSuperAdmin(h.admin)).Post("/roles/grant", h.GrantRole)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
