package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/recallbox/recallbox/internal/access"
	"github.com/recallbox/recallbox/internal/admin"
	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/audit"
	"github.com/recallbox/recallbox/internal/auth"
	"github.com/recallbox/recallbox/internal/billing"
	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/database"
	"github.com/recallbox/recallbox/internal/generate"
	"github.com/recallbox/recallbox/internal/llm"
	"github.com/recallbox/recallbox/internal/middleware"
	inats "github.com/recallbox/recallbox/internal/nats"
	"github.com/recallbox/recallbox/internal/payment"
	"github.com/recallbox/recallbox/internal/ratelimit"
	iredis "github.com/recallbox/recallbox/internal/redis"
	"github.com/recallbox/recallbox/internal/server"
	"github.com/recallbox/recallbox/internal/usage"
	"github.com/recallbox/recallbox/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Migrations
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := database.RunMigrations(cfg.DB.DSN(), migrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional; without it cached entitlements refresh only on
	// forced reads, and usage freshness relies on its trust window)
	var natsClient *inats.Client
	natsClient, err = inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Warn("NATS unavailable, continuing without event feed", "error", err)
		natsClient = nil
	} else {
		defer natsClient.Close()
	}

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Entitlement resolution: REST fetch path first, pgx query path second
	var restFetcher billing.Fetcher
	if restClient := billing.NewRESTClient(cfg.DataAPI); restClient.Enabled() {
		restFetcher = restClient
	}
	billingStore := billing.NewStore(pool)
	resolver := billing.NewResolver(restFetcher, billingStore, cfg.Metering)
	billingHandler := billing.NewHandler(resolver)

	// Usage metering
	usageStore := usage.NewStore(pool)
	counter := usage.NewCounter(usageStore, cfg.Metering)
	usageHandler := usage.NewHandler(counter, cfg.Metering.FreeAllowance)

	// Access gate
	gate := access.NewGate(resolver, counter, cfg.Metering.FreeAllowance)
	accessHandler := access.NewHandler(gate)

	// LLM provider
	provider, err := llm.New(cfg.LLM)
	if err != nil {
		slog.Error("configuring llm provider", "error", err)
		os.Exit(1)
	}

	// Generation (the metered action)
	history := generate.NewHistory(redisClient)
	generateHandler := generate.NewHandler(gate, counter, provider, history)

	// Event plumbing and audit
	var publisher *inats.Publisher
	auditRepo := audit.NewRepository(pool)
	if natsClient != nil {
		publisher = inats.NewPublisher(natsClient.JetStream())
		consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

		invalidator := billing.NewInvalidator(resolver, consumerMgr)
		go func() {
			if err := invalidator.Start(ctx); err != nil {
				slog.Error("entitlement invalidator stopped", "error", err)
			}
		}()

		auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)
		go func() {
			if err := auditConsumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Payments
	paymentSvc := payment.NewService(cfg.Stripe)
	paymentHandler := payment.NewHandler(paymentSvc, resolver)
	webhookHandler := payment.NewWebhookHandler(cfg.Stripe.WebhookSecret, billingStore, publisher)

	// Admin
	adminLimiter := ratelimit.New(cfg.Metering.AdminMaxOps, cfg.Metering.AdminWindow)
	adminHandler := admin.NewHandler(userSvc, auditRepo, publisher, adminLimiter)

	// Auth rate limiter (Redis sliding window, per IP)
	authLimiter := middleware.NewRateLimiter(redisClient, "auth", cfg.Metering.AuthRateMax, cfg.Metering.AuthRateWindowSec)

	// Router
	router := api.NewRouter(pool, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		AuthRateLimiter:    authLimiter.Middleware,
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		Generate:     generateHandler.Generate,
		ClearHistory: generateHandler.ClearHistory,

		GetUsage:    usageHandler.GetStatus,
		CheckAccess: accessHandler.Check,

		GetSubscription: billingHandler.GetSubscription,
		CreateCheckout:  paymentHandler.CreateCheckout,
		CreatePortal:    paymentHandler.CreatePortal,
		PaymentWebhook:  webhookHandler.HandleWebhook,

		SetRole:   adminHandler.SetRole,
		ListAudit: adminHandler.ListAudit,

		AuthMiddleware: auth.Middleware(authSvc),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Give the consumers a moment to drain before the deferred closes run.
	cancel()
	time.Sleep(100 * time.Millisecond)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
