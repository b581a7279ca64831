package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/studypal/backend/internal/auth"
	"github.com/studypal/backend/internal/config"
	"github.com/studypal/backend/internal/intent"
	"github.com/studypal/backend/internal/ledger"
	"github.com/studypal/backend/internal/router"
	"github.com/studypal/backend/internal/settlement"
	"github.com/studypal/backend/internal/sweep"
	"github.com/studypal/backend/internal/wallet"
	"github.com/studypal/backend/pkg/paystack"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := ensureSchema(ctx, pool); err != nil {
		slog.Error("Failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// Wallet & ledger
	walletRepo := wallet.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	walletSvc := wallet.NewService(pool, walletRepo, ledgerRepo)
	walletHandler := wallet.NewHandler(walletSvc, logger)
	ledgerHandler := ledger.NewHandler(ledgerRepo, logger)

	// Checkout intents
	intentRepo := intent.NewRepository(pool)
	intentSvc := intent.NewService(intentRepo)
	intentHandler := intent.NewHandler(intentSvc, logger)

	// Settlement
	paystackClient := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	paymentRepo := settlement.NewRepository(pool)
	engine := &settlement.Engine{
		DB:             pool,
		Wallets:        walletRepo,
		Payments:       paymentRepo,
		Intents:        intentRepo,
		Ledger:         ledgerRepo,
		Accounts:       authRepo,
		Verifier:       paystackClient,
		Log:            logger,
		WelcomeBonus:   cfg.WelcomeBonusUnits,
		ReferralBonus:  cfg.ReferralBonusUnits,
		VerifyAttempts: cfg.VerifyMaxAttempts,
		RetryDelay:     500 * time.Millisecond,
	}
	settleHandler := settlement.NewHandler(engine, cfg.WebhookSecret, logger)

	// Intent sweep worker
	workers := river.NewWorkers()
	retention := time.Duration(cfg.IntentRetentionHours) * time.Hour
	river.AddWorker(workers, sweep.NewExpireIntentsWorker(intentRepo, retention, logger))

	sweepJob := river.NewPeriodicJob(
		river.PeriodicInterval(time.Hour),
		func() (river.JobArgs, *river.InsertOpts) {
			return sweep.ExpireIntentsArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{sweepJob},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	apiRouter := router.New(authHandler, walletHandler, intentHandler, settleHandler, ledgerHandler, authSvc)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (runs the intent sweep)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
