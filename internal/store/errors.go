package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., an account with the same email).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInvalidTransition is returned when a status write would violate the
	// task state machine, most often because the task is already terminal.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCheckpointOrder is returned when an external job id is written to a
	// task that has no token checkpoint yet.
	ErrCheckpointOrder = errors.New("checkpoint written out of order")

	// ErrNoAccountAvailable is returned by Lease when every account of the
	// tenant is already leased or the tenant has none.
	ErrNoAccountAvailable = errors.New("no account available")

	// Entity-specific "not found" errors

	ErrTenantNotFound  = fmt.Errorf("%w: tenant", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("%w: account", ErrNotFound)
	ErrTaskNotFound    = fmt.Errorf("%w: task", ErrNotFound)

	// Entity-specific "duplicate" errors

	ErrAccountExists = fmt.Errorf("%w: account", ErrDuplicate)
	ErrTenantExists  = fmt.Errorf("%w: tenant", ErrDuplicate)
)

// StoreError wraps an unexpected driver failure with the entity and
// operation it interrupted. Sentinels stay reachable through Unwrap.
type StoreError struct {
	Entity    string // The entity type (e.g., "task", "account")
	Operation string // The operation that failed (e.g., "lease", "transition")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
