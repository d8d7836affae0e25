package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/store"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTenantCacheSize is the number of API keys a TenantResolver keeps.
const DefaultTenantCacheSize = 1024

// TenantLookup resolves a tenant from its API key.
type TenantLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)
}

// TenantResolver resolves API keys to tenants through an LRU cache. Only
// successful lookups are cached, so a newly created key works at once.
type TenantResolver struct {
	tenants TenantLookup
	cache   *lru.Cache[string, *domain.Tenant]
}

// NewTenantResolver creates a resolver caching up to size keys.
func NewTenantResolver(tenants TenantLookup, size int) (*TenantResolver, error) {
	if size <= 0 {
		size = DefaultTenantCacheSize
	}
	cache, err := lru.New[string, *domain.Tenant](size)
	if err != nil {
		return nil, fmt.Errorf("create tenant cache: %w", err)
	}
	return &TenantResolver{tenants: tenants, cache: cache}, nil
}

// Resolve returns the tenant owning apiKey, or store.ErrTenantNotFound.
func (r *TenantResolver) Resolve(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	if t, ok := r.cache.Get(apiKey); ok {
		return t, nil
	}
	t, err := r.tenants.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	r.cache.Add(apiKey, t)
	return t, nil
}

// Purge drops every cached key. Call it after deleting a tenant.
func (r *TenantResolver) Purge() {
	r.cache.Purge()
}

// AuthMiddleware authenticates tenants by API key.
type AuthMiddleware struct {
	resolver *TenantResolver
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(resolver *TenantResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Authenticate reads the API key from the Authorization header, either as
// "Bearer <key>" or as the bare key, and stores the tenant in the request
// context. Unknown keys get 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKeyFromHeader(r.Header.Get("Authorization"))
		if key == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		tenant, err := m.resolver.Resolve(r.Context(), key)
		switch {
		case errors.Is(err, store.ErrTenantNotFound):
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Unauthorized", err,
				shared.WithElevatedLogLevel())
			return
		case err != nil:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			return
		}

		ctx := shared.WithTenant(r.Context(), tenant)
		log := logger.FromContextOrDefault(ctx, slog.Default())
		ctx = logger.WithLogger(ctx, log.With(slog.String("tenant_id", tenant.ID.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func apiKeyFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return header
}
