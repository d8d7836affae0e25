package api

import (
	"github.com/go-chi/chi/v5"
)

// Register mounts the tenant routes on r. Authentication is the caller's
// concern.
func (h *Handler) Register(r chi.Router) {
	r.Post("/generate/image", h.GenerateImage)
	r.Post("/generate/video", h.GenerateVideo)
	r.Post("/generate/tts", h.GenerateSpeech)

	r.Get("/status", h.ListTasks)
	r.Get("/status/{taskID}", h.GetTask)
	r.Get("/quota", h.GetQuota)

	r.Post("/accounts/add", h.AddAccounts)
	r.Get("/accounts", h.ListAccounts)
	r.Delete("/accounts/{email}", h.DeleteAccount)

	r.Get("/tts/voices", h.ListVoices)
}

// Register mounts the admin routes on r.
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/tenants", h.CreateTenant)
	r.Get("/tenants", h.ListTenants)
	r.Delete("/tenants/{id}", h.DeleteTenant)
	r.Post("/accounts/reset", h.ResetAccounts)
}
