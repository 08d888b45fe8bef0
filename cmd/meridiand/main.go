package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-gov/meridian/internal/app"
	"github.com/meridian-gov/meridian/internal/audit"
	audithttp "github.com/meridian-gov/meridian/internal/audit/http"
	"github.com/meridian-gov/meridian/internal/auth"
	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/cases"
	"github.com/meridian-gov/meridian/internal/documents"
	"github.com/meridian-gov/meridian/internal/ledger"
	"github.com/meridian-gov/meridian/internal/observability"
	"github.com/meridian-gov/meridian/internal/platform/cache"
	"github.com/meridian-gov/meridian/internal/platform/db"
	"github.com/meridian-gov/meridian/internal/shared"
	"github.com/meridian-gov/meridian/internal/users"
	"github.com/meridian-gov/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(dbpool)
	registry := authz.NewRegistry()
	evaluator := authz.NewEvaluator(registry, usersRepo)

	store := ledger.NewPostgresStore(dbpool)
	led, err := ledger.NewLedger(ctx, ledger.Config{
		Store:         store,
		Logger:        logger,
		Metrics:       metrics,
		AppendTimeout: cfg.AuditAppendTimeout,
		QueueSize:     cfg.AuditQueueSize,
	})
	if err != nil {
		logger.Error("init audit ledger", slog.Any("error", err))
		os.Exit(1)
	}
	recorder := ledger.NewRecorder(led, metrics)
	reader := ledger.NewReader(store)
	verifier := ledger.NewVerifier(store, logger, metrics)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, recorder)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersService := users.NewService(usersRepo, evaluator, recorder, logger)
	usersHandler := users.NewHandler(logger, usersService)

	casesRepo := cases.NewRepository(dbpool)
	casesService := cases.NewService(casesRepo, evaluator, recorder, logger)
	casesHandler := cases.NewHandler(logger, casesService)

	documentsRepo := documents.NewRepository(dbpool)
	documentsService := documents.NewService(documentsRepo, evaluator, recorder, logger)
	documentsHandler := documents.NewHandler(logger, documentsService)

	auditService := audit.NewService(reader, verifier)
	auditHandler := audithttp.NewHandler(logger, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Authz:            authz.Middleware{Directory: usersRepo, Logger: logger},
		AuthHandler:      authHandler,
		CasesHandler:     casesHandler,
		DocumentsHandler: documentsHandler,
		UsersHandler:     usersHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	led.Close()
}
