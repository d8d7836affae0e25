package api

import (
	"net/http"
	"testing"

	"github.com/forgeline/genrelay/internal/api/shared"
	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Admitted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		body string
		mode domain.TaskMode
	}{
		{name: "image", path: "/api/generate/image", body: `{"prompt":"a cat"}`, mode: domain.TaskModeImage},
		{name: "video", path: "/api/generate/video", body: `{"prompt":"waves","model":"VEO_3_1"}`, mode: domain.TaskModeVideo},
		{name: "tts", path: "/api/generate/tts", body: `{"text":"hello","stability":0.3}`, mode: domain.TaskModeTTS},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t)
			s.addAccounts(t, "a@example.com")

			rec := s.do(t, http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decodeBody[GenerateResponse](t, rec)
			id, err := uuid.Parse(resp.TaskID)
			require.NoError(t, err)

			stored := s.mem.Task(id)
			require.NotNil(t, stored)
			assert.Equal(t, tc.mode, stored.Mode)
			assert.Equal(t, s.tenant.ID, stored.TenantID)
		})
	}
}

func TestGenerate_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		path        string
		body        string
		accounts    []string
		busy        int
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:       "missing prompt",
			path:       "/api/generate/image",
			body:       `{"images":[]}`,
			accounts:   []string{"a@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt required",
		},
		{
			name:       "missing text",
			path:       "/api/generate/tts",
			body:       `{"voice_id":"v"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Text required",
		},
		{
			name:       "malformed body",
			path:       "/api/generate/video",
			body:       `{"prompt":`,
			accounts:   []string{"a@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
		{
			name:       "unknown video model",
			path:       "/api/generate/video",
			body:       `{"prompt":"x","model":"KLING"}`,
			accounts:   []string{"a@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request parameters",
		},
		{
			name:       "no accounts",
			path:       "/api/generate/image",
			body:       `{"prompt":"x"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "No accounts available",
		},
		{
			name:        "at capacity",
			path:        "/api/generate/video",
			body:        `{"prompt":"x"}`,
			accounts:    []string{"a@example.com"},
			busy:        2,
			wantStatus:  http.StatusTooManyRequests,
			wantError:   "Maximum concurrent tasks reached",
			wantMessage: "Currently 2/2 tasks running. Please wait.",
		},
		{
			name:        "tts at capacity",
			path:        "/api/generate/tts",
			body:        `{"text":"x"}`,
			busy:        2,
			wantStatus:  http.StatusTooManyRequests,
			wantError:   "Maximum concurrent tasks reached",
			wantMessage: "Currently 2/2 tasks running. Please wait.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, func(c *config.TaskConfig) { c.MaxConcurrent = 2 })
			s.addAccounts(t, tc.accounts...)
			for i := 0; i < tc.busy; i++ {
				busy, err := domain.NewTask(s.tenant.ID, domain.TaskModeImage)
				require.NoError(t, err)
				busy.Status = domain.TaskStatusRunning
				s.mem.SeedTask(busy)
			}

			rec := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)

			resp := decodeBody[shared.ErrorResponse](t, rec)
			assert.Equal(t, tc.wantError, resp.Error)
			assert.Equal(t, tc.wantMessage, resp.Message)
			assert.NotEmpty(t, resp.TraceID)

			n, err := s.runner.RunningCount(t.Context())
			require.NoError(t, err)
			assert.Equal(t, tc.busy, n, "rejected requests create no task")
		})
	}
}

func TestGenerate_SpeechNotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	s.speaker.ExpectedCalls = nil
	s.speaker.On("Configured").Return(false)

	rec := s.do(t, http.MethodPost, "/api/generate/tts", `{"text":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Text-to-speech API key not configured", decodeBody[shared.ErrorResponse](t, rec).Error)
}

func TestGenerate_Unauthorized(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.doWithHeaders(t, http.MethodPost, "/api/generate/image", `{"prompt":"x"}`,
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImageRequest_SingleImageFallback(t *testing.T) {
	t.Parallel()

	p := ImageRequest{Prompt: "x", Image: "abc", ImageSize: "ONE_BY_ONE"}.params()
	assert.Equal(t, []string{"abc"}, p.Images)
	assert.Equal(t, "ONE_BY_ONE", p.Size)

	p = ImageRequest{Prompt: "x", Image: "abc", Images: []string{"d", "e"}}.params()
	assert.Equal(t, []string{"d", "e"}, p.Images)
}
