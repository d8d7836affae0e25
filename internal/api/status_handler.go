package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TaskSummary is one entry of the task list.
type TaskSummary struct {
	TaskID    string            `json:"task_id"`
	Mode      domain.TaskMode   `json:"mode"`
	Status    domain.TaskStatus `json:"status"`
	ResultURL string            `json:"result_url,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// StatusListResponse is the body of GET /api/status.
type StatusListResponse struct {
	Tasks         []TaskSummary `json:"tasks"`
	RunningTasks  int           `json:"running_tasks"`
	MaxConcurrent int           `json:"max_concurrent"`
}

// QuotaResponse is the body of GET /api/quota.
type QuotaResponse struct {
	Quota          int `json:"quota"`
	RunningTasks   int `json:"running_tasks"`
	MaxConcurrent  int `json:"max_concurrent"`
	AvailableSlots int `json:"available_slots"`
}

// GetTask handles GET /api/status/{taskID}. The full task, logs included,
// is returned.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	raw := chi.URLParam(r, "taskID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.log(r).Debug("invalid task id", slog.String("task_id", raw))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	t, err := h.runner.Get(r.Context(), tenant.ID, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// ListTasks handles GET /api/status.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	tasks, err := h.runner.List(r.Context(), tenant.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	running, err := h.runner.RunningCount(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}

	resp := StatusListResponse{
		Tasks:         make([]TaskSummary, 0, len(tasks)),
		RunningTasks:  running,
		MaxConcurrent: h.runner.MaxConcurrent(),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, TaskSummary{
			TaskID:    t.ID.String(),
			Mode:      t.Mode,
			Status:    t.Status,
			ResultURL: t.Result,
			CreatedAt: t.CreatedAt,
		})
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetQuota handles GET /api/quota. Quota is the tenant's unleased
// credential count.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	available, err := h.pool.Available(r.Context(), tenant.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get quota")
		return
	}
	running, err := h.runner.RunningCount(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get quota")
		return
	}

	maxConcurrent := h.runner.MaxConcurrent()
	shared.RespondWithJSON(w, r, http.StatusOK, QuotaResponse{
		Quota:          available,
		RunningTasks:   running,
		MaxConcurrent:  maxConcurrent,
		AvailableSlots: max(0, maxConcurrent-running),
	})
}
