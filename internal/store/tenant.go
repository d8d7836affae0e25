package store

import (
	"context"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/google/uuid"
)

// TenantStore defines the interface for tenant persistence.
type TenantStore interface {
	// Create saves a new tenant.
	// Returns ErrTenantExists if the API key is already registered.
	Create(ctx context.Context, tenant *domain.Tenant) error

	// GetByAPIKey resolves a tenant from its API key.
	// Returns ErrTenantNotFound if the key is unknown.
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)

	// List returns every tenant ordered by creation time.
	List(ctx context.Context) ([]*domain.Tenant, error)

	// Delete removes a tenant together with its accounts and tasks.
	// Returns ErrTenantNotFound if the tenant does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
