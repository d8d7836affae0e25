package api

import (
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/platform/tts"
)

// VoicesResponse is the body of GET /api/tts/voices.
type VoicesResponse struct {
	Voices []tts.Voice `json:"voices"`
}

// ListVoices handles GET /api/tts/voices.
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.tenant(w, r); !ok {
		return
	}
	if h.voices == nil || !h.voices.Configured() {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Text-to-speech API key not configured")
		return
	}

	voices, err := h.voices.ListVoices(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "Failed to fetch voices", err)
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, VoicesResponse{Voices: voices})
}
