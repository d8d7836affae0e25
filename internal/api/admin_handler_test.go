package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Key": testAdminKey}
}

func TestAdmin_TenantLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := s.doWithHeaders(t, http.MethodPost, "/admin/tenants", "", adminHeaders())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.Tenant](t, rec)
	assert.True(t, strings.HasPrefix(created.APIKey, apiKeyPrefix))
	assert.Len(t, created.APIKey, len(apiKeyPrefix)+48)

	// the new key works right away
	rec = s.doWithHeaders(t, http.MethodGet, "/api/quota", "",
		map[string]string{"Authorization": "Bearer " + created.APIKey})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.doWithHeaders(t, http.MethodPost, "/admin/tenants", `{"api_key":"my-own-key-0123456789"}`, adminHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.doWithHeaders(t, http.MethodPost, "/admin/tenants", `{"api_key":"my-own-key-0123456789"}`, adminHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.doWithHeaders(t, http.MethodGet, "/admin/tenants", "", adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[TenantListResponse](t, rec).Tenants, 3)

	rec = s.doWithHeaders(t, http.MethodDelete, "/admin/tenants/"+created.ID.String(), "", adminHeaders())
	require.Equal(t, http.StatusNoContent, rec.Code)

	// the cached key is gone with the tenant
	rec = s.doWithHeaders(t, http.MethodGet, "/api/quota", "",
		map[string]string{"Authorization": "Bearer " + created.APIKey})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doWithHeaders(t, http.MethodDelete, "/admin/tenants/"+created.ID.String(), "", adminHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_ResetAccounts(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.addAccounts(t, "a@example.com", "b@example.com")
	s.mem.SetLeased(s.tenant.ID, "a@example.com", true)
	s.mem.SetLeased(s.tenant.ID, "b@example.com", true)

	rec := s.doWithHeaders(t, http.MethodPost, "/admin/accounts/reset", "", adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeBody[ResetAccountsResponse](t, rec).Released)
	assert.False(t, s.mem.Account(s.tenant.ID, "a@example.com").Leased)
}

func TestAdmin_RequiresKey(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.doWithHeaders(t, http.MethodGet, "/admin/tenants", "",
		map[string]string{"Authorization": "Bearer " + s.tenant.APIKey})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
