package main

import (
	"net/http"

	apiMiddleware "github.com/forgeline/genrelay/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter creates the router with the public API under /api and the
// administrative endpoints under /admin.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	auth := apiMiddleware.NewAuthMiddleware(app.resolver)
	admin := apiMiddleware.NewAdminMiddleware(app.cfg.Admin.KeyHash)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate)
		app.handler.Register(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.Authorize)
		app.admin.Register(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(app.gatherer, promhttp.HandlerOpts{}))

	return r
}
