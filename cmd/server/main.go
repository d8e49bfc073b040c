package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskmarket/internal/config"
	"taskmarket/internal/db"
	"taskmarket/internal/events"
	"taskmarket/internal/handlers"
	"taskmarket/internal/services"
	"taskmarket/internal/store"
	"taskmarket/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	taskStore := store.NewTaskStore(database)
	txRunner := db.NewTxRunner(database, cfg.TxMaxAttempts)
	hub := websocket.NewHub()

	notifiers := []events.Notifier{hub}
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, events.NewWebhookNotifier(cfg.NotifyWebhookURL, &http.Client{Timeout: cfg.NotifyTimeout}))
	}
	emitter := events.NewEmitter(logger, cfg.NotifyTimeout, notifiers...)

	ledger := services.NewCreditLedger(txRunner, accounts, store.NewLedgerStore(database), hub, logger)
	offers := services.NewOfferService(txRunner, taskStore, store.NewApplicationStore(database), accounts,
		services.NewReservationEngine(ledger), audit, emitter, cfg.CreditUnitValue, logger)
	tasks := services.NewTaskService(txRunner, taskStore, audit)

	handler := handlers.New(txRunner, cfg, handlers.Deps{
		Users:    users,
		Accounts: accounts,
		Admin:    admin,
		Audit:    audit,
		Ledger:   ledger,
		Offers:   offers,
		Tasks:    tasks,
		Hub:      hub,
		Logger:   logger,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("taskmarket API listening", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := emitter.Close(ctx); err != nil {
		logger.Warn("pending notifications abandoned", "error", err)
	}
}
