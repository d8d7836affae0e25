package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// serve runs the HTTP server until ctx is cancelled, a shutdown signal
// arrives or the listener fails. On the way out it drains HTTP requests,
// stops the task runner and closes the database, in that order.
func (app *application) serve(ctx context.Context, router http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serveErr:
		app.logger.Error("server failed", "error", err)
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}

	// polling tasks stay running in the store and are resumed by the
	// next process
	if err := app.runner.Stop(shutdownCtx); err != nil {
		app.logger.Error("task runner did not stop in time", "error", err)
		runErr = errors.Join(runErr, err)
	}

	app.cleanup()
	app.logger.Info("server shutdown completed")
	return runErr
}
