package api

import (
	"errors"
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/tts"
	"github.com/forgeline/genrelay/internal/store"
	"github.com/forgeline/genrelay/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrCapacityReached):
		return http.StatusTooManyRequests

	case errors.Is(err, task.ErrStopped):
		return http.StatusServiceUnavailable

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that never
// includes the error text itself.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, task.ErrCapacityReached):
		return "Maximum concurrent tasks reached"
	case errors.Is(err, task.ErrStopped):
		return "Server is shutting down"
	case errors.Is(err, task.ErrPromptRequired):
		return "Prompt required"
	case errors.Is(err, task.ErrTextRequired):
		return "Text required"
	case errors.Is(err, domain.ErrInvalidTaskMode):
		return "Invalid mode"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrAccountNotFound):
		return "Account not found"
	case errors.Is(err, store.ErrTenantNotFound):
		return "Tenant not found"
	case errors.Is(err, store.ErrDuplicate):
		return "Already exists"
	case errors.Is(err, tts.ErrNotConfigured):
		return "Text-to-speech API key not configured"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and message for err. A non-empty
// fallback replaces the generic message of 500 responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	var capErr *task.CapacityError
	if errors.As(err, &capErr) {
		opts = append(opts, shared.WithMessage(capErr.Error()))
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
