package store

import (
	"context"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/google/uuid"
)

// TaskStore defines the interface for generation task persistence.
//
// Status writes are conditional: a write that is not an edge of the task
// state machine, including any write to a terminal task, fails with
// ErrInvalidTransition and leaves the row untouched.
type TaskStore interface {
	// Create saves a new pending task.
	Create(ctx context.Context, task *domain.Task) error

	// Get returns a task owned by the tenant.
	// Returns ErrTaskNotFound when the task does not exist for that tenant.
	Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.Task, error)

	// ListByTenant returns the tenant's tasks, newest first, without logs.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*domain.Task, error)

	// CountActive returns the number of pending or running tasks across all tenants.
	CountActive(ctx context.Context) (int, error)

	// Transition moves the task to status. result is stored when non-empty.
	Transition(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result string) error

	// SaveToken durably records the session token checkpoint.
	SaveToken(ctx context.Context, id uuid.UUID, token string) error

	// SaveExternalID durably records the vendor job id watermark.
	// Returns ErrCheckpointOrder if no token was saved first.
	SaveExternalID(ctx context.Context, id uuid.UUID, externalID string) error

	// AppendLog appends one line to the task's log.
	AppendLog(ctx context.Context, id uuid.UUID, message string) error

	// FailStranded marks every pending or running task that has neither a
	// token nor an external id as failed, appends message to its log and
	// releases its attributed credential, all in one transaction. It returns
	// the tasks it failed.
	FailStranded(ctx context.Context, message string) ([]*domain.Task, error)

	// ListIncomplete returns every pending or running task.
	ListIncomplete(ctx context.Context) ([]*domain.Task, error)
}
