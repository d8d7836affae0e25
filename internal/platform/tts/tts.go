// Package tts is the HTTP client for the text-to-speech vendor. Requests are
// authenticated with a single static API key; no tenant credential is
// involved.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/redact"
)

const (
	maxAudioBytes = 32 << 20
	maxErrorBytes = 4 << 10
)

// Voice setting defaults
const (
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.75
	DefaultStyle           = 0.0
	DefaultSpeed           = 1.0
)

// ErrNotConfigured is returned when no API key is configured.
var ErrNotConfigured = errors.New("text-to-speech API key not configured")

// APIError is a non-200 answer from the vendor.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("text-to-speech API error: %d - %s", e.StatusCode, e.Body)
}

// Request is one synthesis request. Nil pointer settings take their defaults.
type Request struct {
	Text            string
	VoiceID         string
	ModelID         string
	Stability       *float64
	SimilarityBoost *float64
	Style           *float64
	Speed           *float64
	SpeakerBoost    *bool
}

// Voice is one entry of the vendor's voice catalogue.
type Voice struct {
	Name    string `json:"name"`
	VoiceID string `json:"voice_id"`
}

type voiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           float64  `json:"style"`
	UseSpeakerBoost bool     `json:"use_speaker_boost"`
	Speed           *float64 `json:"speed,omitempty"`
}

type synthesisBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Client calls the text-to-speech vendor.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	defaultVoiceID string
	defaultModelID string
	logger         *slog.Logger
}

// NewClient creates a client from configuration.
func NewClient(cfg config.TTSConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		defaultVoiceID: cfg.DefaultVoiceID,
		defaultModelID: cfg.ModelID,
		logger:         logger.With(slog.String("component", "tts_client")),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// VoiceFor returns the voice a request will use.
func (c *Client) VoiceFor(req Request) string {
	if req.VoiceID != "" {
		return req.VoiceID
	}
	return c.defaultVoiceID
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Synthesize renders text to MP3 and returns it as a data URL.
func (c *Client) Synthesize(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	model := req.ModelID
	if model == "" {
		model = c.defaultModelID
	}
	boost := true
	if req.SpeakerBoost != nil {
		boost = *req.SpeakerBoost
	}
	settings := voiceSettings{
		Stability:       orDefault(req.Stability, DefaultStability),
		SimilarityBoost: orDefault(req.SimilarityBoost, DefaultSimilarityBoost),
		Style:           orDefault(req.Style, DefaultStyle),
		UseSpeakerBoost: boost,
	}
	if speed := orDefault(req.Speed, DefaultSpeed); speed != DefaultSpeed {
		settings.Speed = &speed
	}

	payload, err := json.Marshal(synthesisBody{Text: req.Text, ModelID: model, VoiceSettings: settings})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL + "/text-to-speech/" + url.PathEscape(c.VoiceFor(req))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("text-to-speech request failed: %s", redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return "", &APIError{StatusCode: resp.StatusCode, Body: redact.String(string(body))}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(audio) > maxAudioBytes {
		return "", fmt.Errorf("audio exceeded limit of %d bytes", maxAudioBytes)
	}

	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio), nil
}

// ListVoices returns the vendor's voice catalogue.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list voices: %s", redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: redact.String(string(body))}
	}

	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAudioBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	if out.Voices == nil {
		out.Voices = []Voice{}
	}
	return out.Voices, nil
}
