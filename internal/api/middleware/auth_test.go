package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	mem := mocks.NewMemoryStore()
	tenant, err := domain.NewTenant("sk-live-1234")
	require.NoError(t, err)
	require.NoError(t, mem.Tenants().Create(context.Background(), tenant))

	resolver, err := NewTenantResolver(mem.Tenants(), 0)
	require.NoError(t, err)
	mw := NewAuthMiddleware(resolver)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "bearer key", header: "Bearer sk-live-1234", wantStatus: http.StatusOK},
		{name: "raw key", header: "sk-live-1234", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "unknown key", header: "Bearer sk-nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got *domain.Tenant
			handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = shared.TenantFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, tenant.ID, got.ID)
			} else {
				assert.Nil(t, got)
				assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_StoreError(t *testing.T) {
	t.Parallel()

	mem := mocks.NewMemoryStore()
	mem.Hook = func(op string) error {
		if op == "GetByAPIKey" {
			return assert.AnError
		}
		return nil
	}
	resolver, err := NewTenantResolver(mem.Tenants(), 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	NewAuthMiddleware(resolver).Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestTenantResolver_CachesHits(t *testing.T) {
	t.Parallel()

	mem := mocks.NewMemoryStore()
	var lookups atomic.Int32
	mem.Hook = func(op string) error {
		if op == "GetByAPIKey" {
			lookups.Add(1)
		}
		return nil
	}
	tenant, err := domain.NewTenant("key-a")
	require.NoError(t, err)
	require.NoError(t, mem.Tenants().Create(context.Background(), tenant))

	resolver, err := NewTenantResolver(mem.Tenants(), 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := resolver.Resolve(context.Background(), "key-a")
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, got.ID)
	}
	assert.Equal(t, int32(1), lookups.Load())

	// misses are not cached
	for i := 0; i < 2; i++ {
		_, err := resolver.Resolve(context.Background(), "key-b")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(3), lookups.Load())

	resolver.Purge()
	_, err = resolver.Resolve(context.Background(), "key-a")
	require.NoError(t, err)
	assert.Equal(t, int32(4), lookups.Load())
}

func TestAPIKeyFromHeader(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", apiKeyFromHeader("Bearer abc"))
	assert.Equal(t, "abc", apiKeyFromHeader(" abc "))
	assert.Equal(t, "", apiKeyFromHeader(""))
}
