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

	"ai-receptionist/internal/auth"
	"ai-receptionist/internal/calls"
	"ai-receptionist/internal/chat"
	"ai-receptionist/internal/config"
	"ai-receptionist/internal/convai"
	"ai-receptionist/internal/httpapi"
	"ai-receptionist/internal/jobs"
	"ai-receptionist/internal/llm"
	"ai-receptionist/internal/pricing"
	"ai-receptionist/internal/reporting"
	"ai-receptionist/internal/scheduling"
	"ai-receptionist/internal/telephony"
	"ai-receptionist/internal/tools"
	"ai-receptionist/internal/usage"
	"ai-receptionist/pkg/logger"
	"ai-receptionist/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	prices, err := pricing.NewService(pricing.Rates{
		ConvAIPerMinuteMicros:    cfg.Billing.ConvAIRatePerMinuteMicros,
		TelephonyPerMinuteMicros: cfg.Billing.TelephonyRatePerMinuteMicros,
	})
	if err != nil {
		log.Error("pricing init failed", "err", err)
		os.Exit(1)
	}

	callRepo := calls.NewPostgresRepository(db)
	registry := calls.NewRegistry(callRepo,
		calls.NewRedisSlots(rdb, cfg.Calls.MaxConcurrentPerTenant, 0),
		calls.RegistryConfig{
			ConvAIURL:        cfg.Voice.ConvAIURL,
			APIKey:           cfg.Voice.ElevenLabsAPIKey,
			AudioContentType: cfg.Voice.AudioContentType,
			PublicBaseURL:    cfg.App.PublicBaseURL,
			ConnectingTTL:    cfg.Calls.ConnectingTTL,
		})
	reconciler := usage.NewReconciler(usage.NewPostgresStore(db), prices)
	router := tools.NewRouter(registry,
		scheduling.NewScheduler(scheduling.NewPostgresRepository(db)),
		tools.NewExecutionLog(callRepo))

	resolver := &auth.Resolver{
		Tokens:              tokens,
		AllowHeaderOverride: cfg.Tenant.AllowHeaderOverride,
		BaseDomain:          cfg.Tenant.BaseDomain,
		Subdomains:          auth.PostgresSubdomains{DB: db},
		Log:                 log,
	}

	d := deps{
		Resolver: resolver,
		Vonage:   telephony.VonageWebhookHandler{Router: registry, Statuses: registry},
		ConvAI:   convai.WebhookHandler{Calls: registry, Tools: router, Usage: reconciler},
		Chat: chat.Handler{
			LLM:          llm.NewAdapter(cfg.LLM),
			SystemPrompt: cfg.LLM.SystemPrompt,
			Timeout:      cfg.LLM.Timeout,
		},
		API: httpapi.Handlers{
			Calls:   callRepo,
			Reports: reporting.NewService(callRepo),
			Usage:   reconciler,
		},
		Ready: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, d)

	go jobs.Sweeper{
		Calls:    registry,
		Usage:    reconciler,
		Interval: cfg.Calls.SweepInterval,
		Log:      log.With("component", "sweeper"),
	}.Run(rootCtx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streaming chat responses outlive any fixed write deadline; chat
		// handlers bound their own lifetime with the LLM timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
