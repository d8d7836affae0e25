package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/redact"
	"github.com/go-chi/chi/v5"
)

// AddAccountsRequest is the body of POST /api/accounts/add. Each entry is
// an "email:secret" line.
type AddAccountsRequest struct {
	Accounts []string `json:"accounts" validate:"required"`
}

// AddAccountsResponse reports the outcome of an import.
type AddAccountsResponse struct {
	Message       string `json:"message"`
	Added         int    `json:"added"`
	Failed        int    `json:"failed"`
	TotalAccounts int    `json:"total_accounts"`
}

// AccountListResponse is the body of GET /api/accounts.
type AccountListResponse struct {
	Accounts  []*domain.Account `json:"accounts"`
	Total     int               `json:"total"`
	Available int               `json:"available"`
}

// MessageResponse carries a single confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// AddAccounts handles POST /api/accounts/add.
func (h *Handler) AddAccounts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req AddAccountsRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "accounts field required", err)
		return
	}

	res, err := h.pool.Add(r.Context(), tenant.ID, req.Accounts)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to add accounts")
		return
	}
	available, err := h.pool.Available(r.Context(), tenant.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to add accounts")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AddAccountsResponse{
		Message:       fmt.Sprintf("Added %d accounts, %d failed (duplicates)", res.Added, res.Failed),
		Added:         res.Added,
		Failed:        res.Failed,
		TotalAccounts: available,
	})
}

// ListAccounts handles GET /api/accounts. Secrets are never serialized.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	accounts, err := h.pool.List(r.Context(), tenant.ID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list accounts")
		return
	}

	resp := AccountListResponse{Accounts: accounts, Total: len(accounts)}
	if resp.Accounts == nil {
		resp.Accounts = []*domain.Account{}
	}
	for _, a := range accounts {
		if !a.Leased {
			resp.Available++
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// DeleteAccount handles DELETE /api/accounts/{email}.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid email")
		return
	}

	if err := h.pool.Remove(r.Context(), tenant.ID, email); err != nil {
		HandleAPIError(w, r, err, "Failed to delete account")
		return
	}
	h.log(r).Info("account deleted", slog.String("account", redact.Email(email)))
	shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Account %s deleted", email),
	})
}
