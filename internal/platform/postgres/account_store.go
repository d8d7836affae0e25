package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/redact"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
)

// PostgresAccountStore implements store.AccountStore.
type PostgresAccountStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAccountStore creates an account store on db. Lease opens its
// own transaction when db is a *sql.DB and joins the caller's when db is a
// *sql.Tx.
func NewPostgresAccountStore(db store.DBTX, logger *slog.Logger) *PostgresAccountStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAccountStore{
		db:     db,
		logger: logger.With(slog.String("component", "account_store")),
	}
}

var _ store.AccountStore = (*PostgresAccountStore)(nil)

// Add implements store.AccountStore.Add
func (s *PostgresAccountStore) Add(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (tenant_id, email, secret, leased) VALUES ($1, $2, $3, FALSE)`,
		account.TenantID, account.Email, account.Secret)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrAccountExists
		}
		if IsForeignKeyViolation(err) {
			return store.ErrTenantNotFound
		}
		return MapError(err)
	}
	return nil
}

// List implements store.AccountStore.List
func (s *PostgresAccountStore) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, email, secret, leased, leased_at
		FROM accounts
		WHERE tenant_id = $1
		ORDER BY created_at, email`, tenantID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	accounts := []*domain.Account{}
	for rows.Next() {
		var (
			acc      domain.Account
			leasedAt sql.NullTime
		)
		if err := rows.Scan(&acc.TenantID, &acc.Email, &acc.Secret, &acc.Leased, &leasedAt); err != nil {
			return nil, MapError(err)
		}
		if leasedAt.Valid {
			acc.LeasedAt = &leasedAt.Time
		}
		accounts = append(accounts, &acc)
	}
	return accounts, MapError(rows.Err())
}

// Delete implements store.AccountStore.Delete
func (s *PostgresAccountStore) Delete(ctx context.Context, tenantID uuid.UUID, email string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE tenant_id = $1 AND email = $2`, tenantID, email)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrAccountNotFound)
}

// Count implements store.AccountStore.Count
func (s *PostgresAccountStore) Count(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// CountAvailable implements store.AccountStore.CountAvailable
func (s *PostgresAccountStore) CountAvailable(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE tenant_id = $1 AND NOT leased`, tenantID).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

const (
	selectFreeAccountQuery = `
		SELECT email, secret
		FROM accounts
		WHERE tenant_id = $1 AND NOT leased AND NOT (email = ANY($2))
		ORDER BY created_at, email
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	markLeasedQuery = `
		UPDATE accounts SET leased = TRUE, leased_at = $3
		WHERE tenant_id = $1 AND email = $2`

	attributeTaskQuery = `
		UPDATE tasks SET account_email = $2, updated_at = $3
		WHERE id = $1`
)

// Lease implements store.AccountStore.Lease. SKIP LOCKED lets concurrent
// leasers pass over a row another transaction is already claiming instead
// of queueing behind it.
func (s *PostgresAccountStore) Lease(
	ctx context.Context,
	tenantID, taskID uuid.UUID,
	exclude []string,
) (*domain.Account, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// a NULL array would make the ANY() filter reject every row
	if exclude == nil {
		exclude = []string{}
	}

	var leased *domain.Account
	err := store.WithinTransaction(ctx, s.db, func(ctx context.Context, tx store.DBTX) error {
		acc := domain.Account{TenantID: tenantID}
		err := tx.QueryRowContext(ctx, selectFreeAccountQuery, tenantID, exclude).Scan(&acc.Email, &acc.Secret)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNoAccountAvailable
			}
			return MapError(err)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, markLeasedQuery, tenantID, acc.Email, now); err != nil {
			return MapError(err)
		}

		result, err := tx.ExecContext(ctx, attributeTaskQuery, taskID, acc.Email, now)
		if err != nil {
			return MapError(err)
		}
		if err := CheckRowsAffected(result, store.ErrTaskNotFound); err != nil {
			return err
		}

		acc.Leased = true
		acc.LeasedAt = &now
		leased = &acc
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNoAccountAvailable) {
			return nil, err
		}
		log.Error("account lease failed",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, store.NewStoreError("account", "lease", "failed to lease account", err)
	}

	log.Debug("account leased",
		slog.String("task_id", taskID.String()),
		slog.String("account", redact.Email(leased.Email)))
	return leased, nil
}

// Release implements store.AccountStore.Release
func (s *PostgresAccountStore) Release(ctx context.Context, tenantID uuid.UUID, email string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET leased = FALSE, leased_at = NULL WHERE tenant_id = $1 AND email = $2`,
		tenantID, email)
	return MapError(err)
}

// ReleaseAll implements store.AccountStore.ReleaseAll
func (s *PostgresAccountStore) ReleaseAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET leased = FALSE, leased_at = NULL WHERE leased`)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
