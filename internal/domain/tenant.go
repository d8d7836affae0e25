package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tenant validation errors
var (
	ErrEmptyTenantID  = errors.New("tenant ID cannot be empty")
	ErrEmptyTenantKey = errors.New("tenant API key cannot be empty")
)

// Tenant is the isolation boundary for credentials and tasks. It is
// identified by its API key and never mutated after creation.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTenant creates a tenant for the given API key.
func NewTenant(apiKey string) (*Tenant, error) {
	t := &Tenant{
		ID:        uuid.New(),
		APIKey:    apiKey,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the Tenant has valid data.
func (t *Tenant) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTenantID
	}
	if t.APIKey == "" {
		return ErrEmptyTenantKey
	}
	return nil
}
