package middleware

import (
	"log/slog"
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/platform/logger"
)

// TraceHeader carries the request trace id back to the client.
const TraceHeader = "X-Trace-ID"

// TraceMiddleware gives every request a trace id and a context logger
// carrying it. Apply it before any middleware that logs.
func TraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := shared.NewTraceID()
			log := base.With(slog.String("trace_id", traceID))

			ctx := shared.WithTraceID(r.Context(), traceID)
			ctx = logger.WithLogger(ctx, log)
			w.Header().Set(TraceHeader, traceID)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
