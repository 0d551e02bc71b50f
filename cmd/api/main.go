package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payhub-ph/payhub-backend/internal/api"
	"github.com/payhub-ph/payhub-backend/internal/api/handlers"
	"github.com/payhub-ph/payhub-backend/internal/auth"
	"github.com/payhub-ph/payhub-backend/internal/config"
	"github.com/payhub-ph/payhub-backend/internal/db"
	"github.com/payhub-ph/payhub-backend/internal/gateway"
	"github.com/payhub-ph/payhub-backend/internal/logger"
	"github.com/payhub-ph/payhub-backend/internal/metrics"
	"github.com/payhub-ph/payhub-backend/internal/middleware"
	"github.com/payhub-ph/payhub-backend/internal/repository/postgres"
	"github.com/payhub-ph/payhub-backend/internal/services"
	"github.com/payhub-ph/payhub-backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(4)
	defer wp.Stop()

	gw := gateway.New(gateway.Config{
		BaseURL:     cfg.GatewayBaseURL,
		MerchantID:  cfg.GatewayMerchantID,
		Secret:      cfg.GatewaySecret,
		CallbackURL: cfg.CallbackURL,
		ReturnURL:   cfg.ReturnURL,
		Timeout:     30 * time.Second,
	}, log)

	tm := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, 15*time.Minute, 7*24*time.Hour)
	userSvc := services.NewUserService(repos.Users, tm)
	balanceSvc := services.NewBalanceService(repos.Balances)
	settleSvc := services.NewSettlementService(repos.Transactions, repos.AuditLogs, log)
	paymentSvc := services.NewPaymentService(repos.Transactions, repos.AuditLogs, gw, settleSvc, log)

	sweeper := services.NewSweeper(repos.Transactions, settleSvc, gw, wp,
		cfg.SweepInterval, cfg.SweepMinAge, cfg.SweepMaxAge, log)
	go sweeper.Run(ctx)

	r := api.NewRouter(api.RouterDeps{
		Cfg:      cfg,
		Auth:     handlers.NewAuthHandler(userSvc),
		Payments: handlers.NewPaymentHandler(paymentSvc, balanceSvc),
		Callback: handlers.NewCallbackHandler(settleSvc, repos.AuditLogs, cfg, log),
		AuthMW:   middleware.NewAuthMiddleware(tm),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
