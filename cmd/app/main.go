package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris/membership-settlement/pkg/bootstrap"
	"github.com/chris/membership-settlement/pkg/config"
	"github.com/chris/membership-settlement/pkg/handlers"
	"github.com/chris/membership-settlement/pkg/handlers/notifications"
	"github.com/chris/membership-settlement/pkg/handlers/reminders"
	"github.com/chris/membership-settlement/pkg/handlers/settlements"
	"github.com/chris/membership-settlement/pkg/handlers/transactions"
	"github.com/chris/membership-settlement/pkg/handlers/wallets"
	"github.com/chris/membership-settlement/pkg/handlers/websockets"
	"github.com/chris/membership-settlement/pkg/scheduler"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Cron jobs
	cron := scheduler.NewCronDriver(time.UTC, logger)
	err = cron.AddJob("reminders", cfg.Reminder.CronSpec, cfg.Reminder.RunTimeout, func(ctx context.Context) error {
		summary, err := svc.Runner.Run(ctx, time.Now().UTC())
		logger.Info("Reminder pass finished", "rules", summary.Rules, "sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped)
		return err
	})
	if err != nil {
		logger.Error("failed to schedule reminders", "error", err)
		os.Exit(1)
	}
	err = cron.AddJob("reconcile", cfg.Settlement.ReconcileSpec, time.Minute, func(ctx context.Context) error {
		summary, err := svc.Engine.ReconcileStuck(ctx, cfg.Settlement.StuckThreshold)
		if summary.Processed > 0 {
			logger.Info("Reconciled stuck settlements", "processed", summary.Processed, "settled", summary.Settled, "failed", summary.Failed)
		}
		return err
	})
	if err != nil {
		logger.Error("failed to schedule reconciliation", "error", err)
		os.Exit(1)
	}
	cron.Start()

	api := &handlers.ApiHandler{
		Settlements:   settlements.NewSettlementsHandler(svc.Engine, logger),
		Transactions:  transactions.NewTransactionsHandler(svc.Store, svc.Scheduler, logger),
		Wallets:       wallets.NewWalletsHandler(svc.Store),
		Notifications: notifications.NewNotificationsHandler(svc.Store),
		Reminders:     reminders.NewRemindersHandler(svc.Runner, cfg.Reminder.RunTimeout, logger),
		WebSocket:     websockets.NewHandler(svc.Hub, svc.FeedTokens, nil, logger),
		Metrics:       promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{}),
	}
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handlers.NewRouter(api, cfg.CronSecret, logger, svc.Metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	if err := cron.Stop(shutdownCtx); err != nil {
		logger.Error("Cron shutdown failed", "error", err)
	}
}
