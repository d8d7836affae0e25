package tts

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, apiKey string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.TTSConfig{
		BaseURL:        srv.URL,
		APIKey:         apiKey,
		DefaultVoiceID: "voice-default",
		ModelID:        "model-default",
		HTTPTimeout:    5 * time.Second,
	}, nil)
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, "secret-key", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/text-to-speech/voice-default", r.URL.Path)
			assert.Equal(t, "secret-key", r.Header.Get("xi-api-key"))
			assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "hello", body["text"])
			assert.Equal(t, "model-default", body["model_id"])
			settings := body["voice_settings"].(map[string]any)
			assert.Equal(t, 0.5, settings["stability"])
			assert.Equal(t, 0.75, settings["similarity_boost"])
			assert.Equal(t, true, settings["use_speaker_boost"])
			assert.NotContains(t, settings, "speed")

			_, _ = w.Write([]byte("mp3"))
		})

		got, err := c.Synthesize(t.Context(), Request{Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "data:audio/mpeg;base64,"+base64.StdEncoding.EncodeToString([]byte("mp3")), got)
	})

	t.Run("explicit voice and speed", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/text-to-speech/v2", r.URL.Path)
			var body synthesisBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.NotNil(t, body.VoiceSettings.Speed)
			assert.Equal(t, 1.2, *body.VoiceSettings.Speed)
			assert.False(t, body.VoiceSettings.UseSpeakerBoost)
			_, _ = w.Write([]byte("x"))
		})

		speed := 1.2
		boost := false
		_, err := c.Synthesize(t.Context(), Request{Text: "hi", VoiceID: "v2", Speed: &speed, SpeakerBoost: &boost})
		require.NoError(t, err)
	})

	t.Run("vendor error", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"detail":"bad voice"}`)
		})

		_, err := c.Synthesize(t.Context(), Request{Text: "hi"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "bad voice")
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		})
		_, err := c.Synthesize(t.Context(), Request{Text: "hi"})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voices", r.URL.Path)
		_, _ = io.WriteString(w, `{"voices":[{"name":"Rachel","voice_id":"r1","category":"premade"}]}`)
	})

	voices, err := c.ListVoices(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []Voice{{Name: "Rachel", VoiceID: "r1"}}, voices)
}
