package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeline/genrelay/internal/api"
	"github.com/forgeline/genrelay/internal/api/middleware"
	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/lease"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/postgres"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"github.com/forgeline/genrelay/internal/platform/tts"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/forgeline/genrelay/internal/task"
	"github.com/prometheus/client_golang/prometheus"
)

// speechClient is the text-to-speech vendor as used by both the runner and
// the voice listing endpoint.
type speechClient interface {
	task.Speaker
	api.VoiceCatalog
}

// stores groups the persistence interfaces the application runs on.
type stores struct {
	tasks    store.TaskStore
	accounts store.AccountStore
	tenants  store.TenantStore
}

// application holds the wired components of a running server.
type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	gatherer prometheus.Gatherer

	pool     *lease.Pool
	runner   *task.Runner
	resolver *middleware.TenantResolver
	handler  *api.Handler
	admin    *api.AdminHandler
}

// newApplication loads configuration, connects to Postgres and wires every
// component against it.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"max_concurrent", cfg.Task.MaxConcurrent,
		"success_lease_policy", cfg.Task.SuccessLeasePolicy,
		"tts_configured", cfg.TTS.APIKey != "",
		"admin_enabled", cfg.Admin.KeyHash != "")
	ctx = logger.WithLogger(ctx, log)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db, "up"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	st := stores{
		tasks:    postgres.NewPostgresTaskStore(db, log),
		accounts: postgres.NewPostgresAccountStore(db, log),
		tenants:  postgres.NewPostgresTenantStore(db, log),
	}

	app, err := assemble(
		cfg,
		log,
		st,
		studio.NewClient(cfg.Studio, log),
		tts.NewClient(cfg.TTS, log),
		prometheus.DefaultRegisterer,
		prometheus.DefaultGatherer,
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.db = db

	return app, nil
}

// assemble wires the pool, runner and HTTP handlers on top of st.
func assemble(
	cfg *config.Config,
	log *slog.Logger,
	st stores,
	session task.Session,
	speech speechClient,
	reg prometheus.Registerer,
	gatherer prometheus.Gatherer,
) (*application, error) {
	pool := lease.NewPool(st.accounts, reg, log)
	runner := task.NewRunner(task.Deps{
		Tasks:      st.tasks,
		Pool:       pool,
		Session:    session,
		Speaker:    speech,
		Registerer: reg,
	}, cfg.Task, log)

	resolver, err := middleware.NewTenantResolver(st.tenants, middleware.DefaultTenantCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant resolver: %w", err)
	}

	return &application{
		cfg:      cfg,
		logger:   log,
		gatherer: gatherer,
		pool:     pool,
		runner:   runner,
		resolver: resolver,
		handler:  api.NewHandler(runner, pool, speech, log),
		admin:    api.NewAdminHandler(st.tenants, pool, resolver, log),
	}, nil
}

// Run recovers interrupted tasks, then serves HTTP until ctx is cancelled
// or the process receives SIGINT or SIGTERM.
func (app *application) Run(ctx context.Context) error {
	ctx = logger.WithLogger(ctx, app.logger)

	started := time.Now()
	report, err := app.runner.Start(ctx)
	if err != nil {
		app.cleanup()
		return err
	}
	app.logger.Info("startup recovery finished",
		"failed", report.Failed,
		"ambiguous", report.Ambiguous,
		"resumed", report.Resumed,
		"skipped", report.Skipped,
		"duration_ms", time.Since(started).Milliseconds())

	return app.serve(ctx, app.setupRouter())
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
		return
	}
	app.logger.Info("database connection closed")
}
