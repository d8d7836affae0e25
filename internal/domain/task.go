package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a generation task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusTimeout   TaskStatus = "timeout"
	TaskStatusError     TaskStatus = "error"
)

// TaskMode selects the generation pipeline a task runs through
type TaskMode string

// Supported modes
const (
	TaskModeImage TaskMode = "image"
	TaskModeVideo TaskMode = "video"
	TaskModeTTS   TaskMode = "tts"
)

// Task validation errors
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrInvalidTaskMode   = errors.New("invalid task mode")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// transitions lists the permitted target states for every source state.
// Terminal states have no entry.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusRunning, TaskStatusFailed, TaskStatusError},
	TaskStatusRunning: {TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout, TaskStatusError},
}

// IsTerminal reports whether no further transition is permitted from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout, TaskStatusError:
		return true
	}
	return false
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	return s == TaskStatusPending || s == TaskStatusRunning || s.IsTerminal()
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status that may move to the given status.
// Stores use it to make status writes conditional.
func TransitionSources(to TaskStatus) []TaskStatus {
	var sources []TaskStatus
	for _, from := range []TaskStatus{TaskStatusPending, TaskStatusRunning} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsValid reports whether m is a supported mode.
func (m TaskMode) IsValid() bool {
	return m == TaskModeImage || m == TaskModeVideo || m == TaskModeTTS
}

// UsesAccounts reports whether tasks of this mode lease a tenant credential.
func (m TaskMode) UsesAccounts() bool {
	return m == TaskModeImage || m == TaskModeVideo
}

// LogEntry is one timestamped line of a task's own log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Task is a single generation request and its checkpoints. Token is always
// written before ExternalTaskID, and AccountEmail is written in the same
// transaction that marks the account leased.
type Task struct {
	ID             uuid.UUID  `json:"task_id"`
	TenantID       uuid.UUID  `json:"-"`
	Mode           TaskMode   `json:"mode"`
	Status         TaskStatus `json:"status"`
	Result         string     `json:"result_url,omitempty"`
	Logs           []LogEntry `json:"logs"`
	ExternalTaskID string     `json:"-"`
	Token          string     `json:"-"`
	AccountEmail   string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTask creates a pending task for the tenant.
func NewTask(tenantID uuid.UUID, mode TaskMode) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Mode:      mode,
		Status:    TaskStatusPending,
		Logs:      []LogEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.TenantID == uuid.Nil {
		return ErrEmptyTenantID
	}
	if !t.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskMode, t.Mode)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, t.Status)
	}
	return nil
}

// HasToken reports whether the authentication checkpoint was written.
func (t *Task) HasToken() bool {
	return t.Token != ""
}

// HasExternalID reports whether the submission watermark was written.
func (t *Task) HasExternalID() bool {
	return t.ExternalTaskID != ""
}
