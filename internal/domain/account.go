package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account validation errors
var (
	ErrEmptyAccountSecret = errors.New("account secret cannot be empty")
	ErrMalformedAccount   = errors.New("account must be formatted as email:secret")
)

// Account is one vendor credential owned by a tenant. While Leased is true
// the account is bound to at most one in-flight task, recorded on that
// task's AccountEmail.
type Account struct {
	TenantID uuid.UUID  `json:"-"`
	Email    string     `json:"email"`
	Secret   string     `json:"-"`
	Leased   bool       `json:"used"`
	LeasedAt *time.Time `json:"leased_at,omitempty"`
}

// Validate checks if the Account has valid data.
func (a *Account) Validate() error {
	if a.TenantID == uuid.Nil {
		return ErrEmptyTenantID
	}
	if a.Email == "" || !strings.Contains(a.Email, "@") {
		return ErrInvalidEmail
	}
	if a.Secret == "" {
		return ErrEmptyAccountSecret
	}
	return nil
}

// ParseAccount builds an Account from an "email:secret" line. Anything after
// a second colon is ignored.
func ParseAccount(tenantID uuid.UUID, line string) (*Account, error) {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, ErrMalformedAccount)
	}

	acc := &Account{
		TenantID: tenantID,
		Email:    strings.TrimSpace(parts[0]),
		Secret:   strings.TrimSpace(parts[1]),
	}
	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return acc, nil
}
