package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/google/uuid"
)

// PostgresTenantStore implements store.TenantStore.
type PostgresTenantStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTenantStore creates a tenant store on db. If logger is nil,
// slog.Default() is used.
func NewPostgresTenantStore(db store.DBTX, logger *slog.Logger) *PostgresTenantStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantStore{
		db:     db,
		logger: logger.With(slog.String("component", "tenant_store")),
	}
}

var _ store.TenantStore = (*PostgresTenantStore)(nil)

// Create implements store.TenantStore.Create
func (s *PostgresTenantStore) Create(ctx context.Context, tenant *domain.Tenant) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := tenant.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, api_key, created_at) VALUES ($1, $2, $3)`,
		tenant.ID, tenant.APIKey, tenant.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrTenantExists
		}
		log.Error("failed to create tenant",
			slog.String("error", err.Error()),
			slog.String("tenant_id", tenant.ID.String()))
		return MapError(err)
	}

	log.Info("tenant created", slog.String("tenant_id", tenant.ID.String()))
	return nil
}

// GetByAPIKey implements store.TenantStore.GetByAPIKey
func (s *PostgresTenantStore) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, api_key, created_at FROM tenants WHERE api_key = $1`,
		apiKey).Scan(&t.ID, &t.APIKey, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, MapError(err)
	}
	return &t, nil
}

// List implements store.TenantStore.List
func (s *PostgresTenantStore) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, api_key, created_at FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.APIKey, &t.CreatedAt); err != nil {
			return nil, MapError(err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, MapError(rows.Err())
}

// Delete implements store.TenantStore.Delete. Accounts and tasks go with
// the tenant through ON DELETE CASCADE.
func (s *PostgresTenantStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrTenantNotFound); err != nil {
		return err
	}

	log.Info("tenant deleted", slog.String("tenant_id", id.String()))
	return nil
}
