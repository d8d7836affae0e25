package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"github.com/forgeline/genrelay/internal/platform/tts"
)

// Session is the generation vendor as seen by the image and video pipelines.
type Session interface {
	// Authenticate exchanges a credential for a session token.
	Authenticate(ctx context.Context, cred studio.Credential) (string, error)

	// UploadImage uploads a PNG reference image and returns its vendor id.
	UploadImage(ctx context.Context, token string, image []byte) (string, error)

	// Submit submits a job. A *studio.RejectedError is a definite refusal;
	// any other error leaves the outcome unknown.
	Submit(ctx context.Context, token string, req studio.SubmitRequest) (string, error)

	// ListRecent returns the session's most recent jobs for the mode.
	ListRecent(ctx context.Context, token string, mode domain.TaskMode) ([]studio.Job, error)
}

// Speaker renders text-to-speech requests.
type Speaker interface {
	Synthesize(ctx context.Context, req tts.Request) (string, error)
}

var (
	_ Session = (*studio.Client)(nil)
	_ Speaker = (*tts.Client)(nil)
)

// Params are the caller-supplied creation parameters of a task. They live
// only as long as the worker; recovery works from the task's checkpoints.
type Params struct {
	// Prompt is required for image and video tasks.
	Prompt string

	// Images are base64 reference images. Video tasks use the first one.
	Images []string

	// Model is the image model version or the video model name.
	Model string

	// Size is the image size or video aspect, e.g. SIXTEEN_BY_NINE.
	Size string

	// Resolution applies to image models that support it.
	Resolution string

	// Text is required for tts tasks.
	Text string

	VoiceID         string
	VoiceModelID    string
	Stability       *float64
	SimilarityBoost *float64
	Style           *float64
	Speed           *float64
	SpeakerBoost    *bool
}

// Validate checks the parameters a mode requires.
func (p Params) Validate(mode domain.TaskMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidTaskMode, mode)
	}
	switch mode {
	case domain.TaskModeTTS:
		if strings.TrimSpace(p.Text) == "" {
			return ErrTextRequired
		}
	default:
		if strings.TrimSpace(p.Prompt) == "" {
			return ErrPromptRequired
		}
	}
	return nil
}

func (p Params) speechRequest() tts.Request {
	return tts.Request{
		Text:            p.Text,
		VoiceID:         p.VoiceID,
		ModelID:         p.VoiceModelID,
		Stability:       p.Stability,
		SimilarityBoost: p.SimilarityBoost,
		Style:           p.Style,
		Speed:           p.Speed,
		SpeakerBoost:    p.SpeakerBoost,
	}
}
