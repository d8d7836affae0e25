package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// apiKeyPrefix marks generated tenant keys.
const apiKeyPrefix = "gr_"

// KeyCache is invalidated when a tenant is deleted.
type KeyCache interface {
	Purge()
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	tenants store.TenantStore
	pool    AccountPool
	keys    KeyCache
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler. keys may be nil.
func NewAdminHandler(tenants store.TenantStore, pool AccountPool, keys KeyCache, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("logger cannot be nil for AdminHandler")
	}
	return &AdminHandler{
		tenants: tenants,
		pool:    pool,
		keys:    keys,
		logger:  logger.With(slog.String("component", "admin_handler")),
	}
}

// CreateTenantRequest is the optional body of POST /admin/tenants. A key is
// generated when APIKey is empty.
type CreateTenantRequest struct {
	APIKey string `json:"api_key" validate:"omitempty,min=16,max=128"`
}

// TenantListResponse is the body of GET /admin/tenants.
type TenantListResponse struct {
	Tenants []*domain.Tenant `json:"tenants"`
}

// ResetAccountsResponse is the body of POST /admin/accounts/reset.
type ResetAccountsResponse struct {
	Released int64 `json:"released"`
}

// CreateTenant handles POST /admin/tenants.
func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTenantRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid api_key", err)
		return
	}

	key := req.APIKey
	if key == "" {
		var err error
		if key, err = generateAPIKey(); err != nil {
			HandleAPIError(w, r, err, "Failed to create tenant")
			return
		}
	}

	tenant, err := domain.NewTenant(key)
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err), "")
		return
	}
	if err := h.tenants.Create(r.Context(), tenant); err != nil {
		HandleAPIError(w, r, err, "Failed to create tenant")
		return
	}

	log.Info("tenant created", slog.String("tenant_id", tenant.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, tenant)
}

// ListTenants handles GET /admin/tenants.
func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tenants")
		return
	}
	if tenants == nil {
		tenants = []*domain.Tenant{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TenantListResponse{Tenants: tenants})
}

// DeleteTenant handles DELETE /admin/tenants/{id}. The tenant's accounts
// and tasks go with it.
func (h *AdminHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid tenant ID")
		return
	}

	if err := h.tenants.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete tenant")
		return
	}
	if h.keys != nil {
		h.keys.Purge()
	}

	logger.FromContextOrDefault(r.Context(), h.logger).
		Info("tenant deleted", slog.String("tenant_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// ResetAccounts handles POST /admin/accounts/reset, releasing every lease
// of every tenant.
func (h *AdminHandler) ResetAccounts(w http.ResponseWriter, r *http.Request) {
	n, err := h.pool.ReleaseAll(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reset accounts")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ResetAccountsResponse{Released: n})
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}
