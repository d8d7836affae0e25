package api

import (
	"net/http"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/task"
)

// ImageRequest is the body of POST /api/generate/image.
type ImageRequest struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	// Image is the single-image form, used when Images is empty.
	Image      string `json:"image"`
	Model      string `json:"model"`
	ImageSize  string `json:"imageSize"`
	Resolution string `json:"resolution"`
}

func (req ImageRequest) params() task.Params {
	images := req.Images
	if len(images) == 0 && req.Image != "" {
		images = []string{req.Image}
	}
	return task.Params{
		Prompt:     req.Prompt,
		Images:     images,
		Model:      req.Model,
		Size:       req.ImageSize,
		Resolution: req.Resolution,
	}
}

// VideoRequest is the body of POST /api/generate/video. A non-empty Image
// makes it an image-to-video generation.
type VideoRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
	Model  string `json:"model" validate:"omitempty,oneof=SORA2 VEO_3_1"`
	Size   string `json:"size"`
}

func (req VideoRequest) params() task.Params {
	p := task.Params{Prompt: req.Prompt, Model: req.Model, Size: req.Size}
	if req.Image != "" {
		p.Images = []string{req.Image}
	}
	return p
}

// SpeechRequest is the body of POST /api/generate/tts.
type SpeechRequest struct {
	Text            string   `json:"text"`
	VoiceID         string   `json:"voice_id"`
	ModelID         string   `json:"model_id"`
	Stability       *float64 `json:"stability" validate:"omitempty,gte=0,lte=1"`
	SimilarityBoost *float64 `json:"similarity_boost" validate:"omitempty,gte=0,lte=1"`
	Style           *float64 `json:"style" validate:"omitempty,gte=0,lte=1"`
	Speed           *float64 `json:"speed" validate:"omitempty,gt=0"`
	SpeakerBoost    *bool    `json:"use_speaker_boost"`
}

func (req SpeechRequest) params() task.Params {
	return task.Params{
		Text:            req.Text,
		VoiceID:         req.VoiceID,
		VoiceModelID:    req.ModelID,
		Stability:       req.Stability,
		SimilarityBoost: req.SimilarityBoost,
		Style:           req.Style,
		Speed:           req.Speed,
		SpeakerBoost:    req.SpeakerBoost,
	}
}

// GenerateResponse is returned once a task is admitted.
type GenerateResponse struct {
	TaskID string `json:"task_id"`
}

// GenerateImage handles POST /api/generate/image.
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.generate(w, r, domain.TaskModeImage, req.params())
}

// GenerateVideo handles POST /api/generate/video.
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req VideoRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.generate(w, r, domain.TaskModeVideo, req.params())
}

// GenerateSpeech handles POST /api/generate/tts.
func (h *Handler) GenerateSpeech(w http.ResponseWriter, r *http.Request) {
	var req SpeechRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.generate(w, r, domain.TaskModeTTS, req.params())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request parameters", err)
		return false
	}
	return true
}

// generate runs the pre-flight checks in the order clients rely on: input,
// then credentials or vendor configuration, then capacity.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request, mode domain.TaskMode, p task.Params) {
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	if err := p.Validate(mode); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if mode == domain.TaskModeTTS {
		if h.voices == nil || !h.voices.Configured() {
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Text-to-speech API key not configured")
			return
		}
	} else {
		available, err := h.pool.Available(r.Context(), tenant.ID)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to check accounts")
			return
		}
		if available == 0 {
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "No accounts available")
			return
		}
	}

	t, err := h.runner.Create(r.Context(), tenant.ID, mode, p)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, GenerateResponse{TaskID: t.ID.String()})
}
