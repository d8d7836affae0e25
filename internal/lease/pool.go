package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/platform/metrics"
	"github.com/forgeline/genrelay/internal/redact"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoneAvailable is returned by Acquire when the tenant has no unleased
// credential left.
var ErrNoneAvailable = errors.New("no accounts available")

// Lease outcomes reported on the leases_total counter
const (
	outcomeAcquired  = "acquired"
	outcomeExhausted = "exhausted"
	outcomeReleased  = "released"
	outcomeRetained  = "retained"
)

// AddResult summarises a bulk credential import.
type AddResult struct {
	Added  int
	Failed int
}

// Pool leases tenant credentials on top of a store.AccountStore.
type Pool struct {
	accounts store.AccountStore
	leases   *prometheus.CounterVec
	logger   *slog.Logger
}

// NewPool creates a Pool. reg may be nil to use the default registry.
func NewPool(accounts store.AccountStore, reg prometheus.Registerer, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	leases := metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "leases_total",
		Help:      "Credential lease operations by outcome.",
	}, []string{"outcome"}))

	return &Pool{
		accounts: accounts,
		leases:   leases,
		logger:   logger.With(slog.String("component", "lease_pool")),
	}
}

func (p *Pool) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, p.logger)
}

// Acquire leases one unleased credential of the tenant to the task,
// skipping the emails in exclude. It returns ErrNoneAvailable when no
// eligible credential is free.
func (p *Pool) Acquire(ctx context.Context, tenantID, taskID uuid.UUID, exclude ...string) (*Lease, error) {
	acc, err := p.accounts.Lease(ctx, tenantID, taskID, exclude)
	if err != nil {
		if errors.Is(err, store.ErrNoAccountAvailable) {
			p.leases.WithLabelValues(outcomeExhausted).Inc()
			return nil, ErrNoneAvailable
		}
		return nil, fmt.Errorf("lease account: %w", err)
	}

	p.leases.WithLabelValues(outcomeAcquired).Inc()
	p.log(ctx).Debug("account leased",
		slog.String("task_id", taskID.String()),
		slog.String("account", redact.Email(acc.Email)))
	return &Lease{pool: p, tenantID: tenantID, account: acc}, nil
}

// Release returns a credential to the pool. It is idempotent.
func (p *Pool) Release(ctx context.Context, tenantID uuid.UUID, email string) error {
	if err := p.accounts.Release(ctx, tenantID, email); err != nil {
		return fmt.Errorf("release account: %w", err)
	}
	p.leases.WithLabelValues(outcomeReleased).Inc()
	p.log(ctx).Debug("account released", slog.String("account", redact.Email(email)))
	return nil
}

// Available returns the number of unleased credentials of the tenant.
func (p *Pool) Available(ctx context.Context, tenantID uuid.UUID) (int, error) {
	n, err := p.accounts.CountAvailable(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("count available accounts: %w", err)
	}
	return n, nil
}

// Total returns the number of credentials of the tenant, leased or not.
func (p *Pool) Total(ctx context.Context, tenantID uuid.UUID) (int, error) {
	n, err := p.accounts.Count(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// Add imports "email:secret" lines. Malformed lines and emails the tenant
// already has are counted as failed; any other store error aborts the import.
func (p *Pool) Add(ctx context.Context, tenantID uuid.UUID, lines []string) (AddResult, error) {
	var res AddResult
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		acc, err := domain.ParseAccount(tenantID, line)
		if err != nil {
			res.Failed++
			continue
		}

		if err := p.accounts.Add(ctx, acc); err != nil {
			if errors.Is(err, store.ErrAccountExists) || errors.Is(err, store.ErrInvalidEntity) {
				res.Failed++
				continue
			}
			return res, fmt.Errorf("add account: %w", err)
		}
		res.Added++
	}

	p.log(ctx).Info("accounts imported",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("added", res.Added),
		slog.Int("failed", res.Failed))
	return res, nil
}

// List returns the tenant's credentials.
func (p *Pool) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Account, error) {
	return p.accounts.List(ctx, tenantID)
}

// Remove deletes one credential. Removing a leased credential does not
// affect the task holding it; its later release is a no-op.
func (p *Pool) Remove(ctx context.Context, tenantID uuid.UUID, email string) error {
	return p.accounts.Delete(ctx, tenantID, email)
}

// ReleaseAll clears every lease in every tenant's pool.
func (p *Pool) ReleaseAll(ctx context.Context) (int64, error) {
	n, err := p.accounts.ReleaseAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("release all accounts: %w", err)
	}
	p.log(ctx).Warn("all account leases cleared", slog.Int64("count", n))
	return n, nil
}
