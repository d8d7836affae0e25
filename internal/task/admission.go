package task

import (
	"context"
	"fmt"

	"github.com/forgeline/genrelay/internal/store"
)

// Admission enforces the ceiling on pending and running tasks across all
// tenants. The count is read before the new task is written, so two
// concurrent admissions can both pass at N-1 and briefly exceed the
// ceiling by one.
type Admission struct {
	tasks store.TaskStore
	max   int
}

// NewAdmission creates an admission check with the given ceiling.
func NewAdmission(tasks store.TaskStore, ceiling int) *Admission {
	if ceiling <= 0 {
		ceiling = 10
	}
	return &Admission{tasks: tasks, max: ceiling}
}

// Max returns the ceiling.
func (a *Admission) Max() int {
	return a.max
}

// Active returns the number of pending and running tasks.
func (a *Admission) Active(ctx context.Context) (int, error) {
	n, err := a.tasks.CountActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return n, nil
}

// Check returns a *CapacityError when the ceiling has been reached.
func (a *Admission) Check(ctx context.Context) error {
	n, err := a.Active(ctx)
	if err != nil {
		return err
	}
	if n >= a.max {
		return &CapacityError{Active: n, Max: a.max}
	}
	return nil
}
