package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/platform/logger"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/sethvargo/go-retry"
)

const (
	pingTimeout     = 5 * time.Second
	connectBackoff  = 500 * time.Millisecond
	connectMaxDelay = 10 * time.Second
)

// openDatabase opens the pool and pings it until it answers or the
// configured number of attempts is spent.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	log := logger.FromContext(ctx)

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	backoff := retry.WithMaxRetries(
		uint64(cfg.ConnectAttempts-1),
		retry.WithCappedDuration(connectMaxDelay, retry.NewExponential(connectBackoff)),
	)
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
	}

	log.Info("database connection established", "attempts", attempt)
	return db, nil
}
