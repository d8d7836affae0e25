package store

import (
	"context"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/google/uuid"
)

// AccountStore defines the interface for the per-tenant credential pool.
type AccountStore interface {
	// Add registers a credential for a tenant in the unleased state.
	// Returns ErrAccountExists if the tenant already has this email.
	Add(ctx context.Context, account *domain.Account) error

	// List returns every credential of the tenant.
	List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Account, error)

	// Delete removes one credential.
	// Returns ErrAccountNotFound if it does not exist.
	Delete(ctx context.Context, tenantID uuid.UUID, email string) error

	// Count returns the number of credentials of the tenant, leased or not.
	Count(ctx context.Context, tenantID uuid.UUID) (int, error)

	// CountAvailable returns the number of unleased credentials of the tenant.
	CountAvailable(ctx context.Context, tenantID uuid.UUID) (int, error)

	// Lease atomically selects one unleased credential of the tenant whose
	// email is not in exclude, marks it leased and records its email on the
	// task, all in one transaction. Concurrent callers never receive the
	// same credential.
	// Returns ErrNoAccountAvailable when nothing is free.
	Lease(ctx context.Context, tenantID, taskID uuid.UUID, exclude []string) (*domain.Account, error)

	// Release marks the credential unleased. Releasing an unleased or
	// unknown credential is not an error.
	Release(ctx context.Context, tenantID uuid.UUID, email string) error

	// ReleaseAll clears every lease across all tenants and returns how many
	// credentials were affected.
	ReleaseAll(ctx context.Context) (int64, error)
}
