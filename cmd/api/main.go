package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/lmittmann/tint"

	"github.com/bryanwahyu/codeaudit/internal/application"
	appanalysis "github.com/bryanwahyu/codeaudit/internal/application/analysis"
	"github.com/bryanwahyu/codeaudit/internal/config"
	domainanalysis "github.com/bryanwahyu/codeaudit/internal/domain/analysis"
	"github.com/bryanwahyu/codeaudit/internal/domain/projects"
	aiopenai "github.com/bryanwahyu/codeaudit/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/codeaudit/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/codeaudit/internal/infra/db/postgres"
	"github.com/bryanwahyu/codeaudit/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/codeaudit/internal/infra/storage"
	"github.com/bryanwahyu/codeaudit/internal/middleware"
)

func main() {
	// set global logger with tint handler
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.Kitchen,
		}),
	))

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// connect database (mysql default, postgres optional)
	var (
		db          *sql.DB
		projectRepo projects.Repository
		sessionRepo domainanalysis.Repository
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			slog.Error("postgres connect error", "err", err)
			os.Exit(1)
		}
		projectRepo = postgresp.NewProjectRepository(db)
		sessionRepo = postgresp.NewAnalysisRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			slog.Error("mysql connect error", "err", err)
			os.Exit(1)
		}
		projectRepo = mysqlp.NewProjectRepository(db)
		sessionRepo = mysqlp.NewAnalysisRepository(db)
	}
	defer db.Close()

	// init service
	svc := &appanalysis.Service{
		Projects:      projectRepo,
		Sessions:      sessionRepo,
		AI:            aiopenai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
		Clock:         application.SystemClock{},
		Model:         cfg.OpenAI.Model,
		AssessTimeout: cfg.AssessTimeout(),
	}

	// optional minio archive for exported reports
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			slog.Error("minio init error", "err", err)
			os.Exit(1)
		}
		svc.Archive = store
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	// init router + middleware chain
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.BearerAuth(cfg.Auth.Tokens))
	if cfg.RateLimit.Capacity > 0 && cfg.RateLimit.RefillRate > 0 {
		mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	}
	mux.Mount("/", httpserver.NewRouter(svc, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // analysis holds the request open for the reasoning call
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		slog.Info("server listening", "addr", addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	slog.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}
