package lease

import (
	"context"
	"sync"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/google/uuid"
)

// Lease is a credential held by one task. The zero value is not usable;
// leases come from Pool.Acquire or Resume.
type Lease struct {
	pool     *Pool
	tenantID uuid.UUID
	account  *domain.Account

	mu      sync.Mutex
	settled bool
}

// Resume rebuilds the lease of a task whose credential was attributed by an
// earlier process. It returns nil when the task carries no account.
func (p *Pool) Resume(t *domain.Task) *Lease {
	if t == nil || t.AccountEmail == "" {
		return nil
	}
	return &Lease{
		pool:     p,
		tenantID: t.TenantID,
		account:  &domain.Account{TenantID: t.TenantID, Email: t.AccountEmail, Leased: true},
	}
}

// Account returns the leased credential.
func (l *Lease) Account() *domain.Account {
	return l.account
}

// Email returns the leased credential's email.
func (l *Lease) Email() string {
	return l.account.Email
}

// Settled reports whether Release or Retain was called.
func (l *Lease) Settled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settled
}

// Release returns the credential to the pool. Only the first call to
// Release or Retain has an effect; a failed release leaves the lease
// unsettled so it can be retried.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settled {
		return nil
	}
	if err := l.pool.Release(ctx, l.tenantID, l.account.Email); err != nil {
		return err
	}
	l.settled = true
	return nil
}

// Retain settles the lease while leaving the credential leased.
func (l *Lease) Retain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.settled {
		return
	}
	l.settled = true
	l.pool.leases.WithLabelValues(outcomeRetained).Inc()
}
