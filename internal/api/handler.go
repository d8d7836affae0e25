package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/lease"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/tts"
	"github.com/forgeline/genrelay/internal/task"
	"github.com/google/uuid"
)

// TaskRunner is the part of task.Runner the handlers use.
type TaskRunner interface {
	Create(ctx context.Context, tenantID uuid.UUID, mode domain.TaskMode, p task.Params) (*domain.Task, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error)
	RunningCount(ctx context.Context) (int, error)
	MaxConcurrent() int
}

// AccountPool is the part of lease.Pool the handlers use.
type AccountPool interface {
	Available(ctx context.Context, tenantID uuid.UUID) (int, error)
	Add(ctx context.Context, tenantID uuid.UUID, lines []string) (lease.AddResult, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Account, error)
	Remove(ctx context.Context, tenantID uuid.UUID, email string) error
	ReleaseAll(ctx context.Context) (int64, error)
}

// VoiceCatalog lists text-to-speech voices.
type VoiceCatalog interface {
	Configured() bool
	ListVoices(ctx context.Context) ([]tts.Voice, error)
}

var (
	_ TaskRunner   = (*task.Runner)(nil)
	_ AccountPool  = (*lease.Pool)(nil)
	_ VoiceCatalog = (*tts.Client)(nil)
)

// Handler serves the tenant-facing API.
type Handler struct {
	runner TaskRunner
	pool   AccountPool
	voices VoiceCatalog
	logger *slog.Logger
}

// NewHandler creates a Handler. voices may be nil when text-to-speech is
// not set up.
func NewHandler(runner TaskRunner, pool AccountPool, voices VoiceCatalog, logger *slog.Logger) *Handler {
	if logger == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("logger cannot be nil for Handler")
	}
	return &Handler{
		runner: runner,
		pool:   pool,
		voices: voices,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// tenant returns the authenticated tenant, writing 401 when there is none.
func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (*domain.Tenant, bool) {
	t, ok := shared.TenantFromContext(r.Context())
	if !ok {
		h.log(r).Warn("tenant not found in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return t, true
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}
