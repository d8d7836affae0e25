package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/tts"
	"github.com/forgeline/genrelay/internal/redact"
)

// speak runs a tts task. It needs no credential and no polling: one vendor
// call decides between completed and failed.
func (e *execution) speak(ctx context.Context, p Params) {
	defer e.recoverPanic(ctx)
	opCtx := context.WithoutCancel(ctx)

	if err := e.r.tasks.Transition(opCtx, e.task.ID, domain.TaskStatusRunning, ""); err != nil {
		e.abort(opCtx, fmt.Errorf("start task: %w", err))
		return
	}
	e.task.Status = domain.TaskStatusRunning

	if e.r.speaker == nil {
		e.finish(opCtx, domain.TaskStatusFailed, "", "Text-to-speech is not configured.")
		return
	}

	voice := p.VoiceID
	if voice == "" {
		voice = "default"
	}
	e.note(opCtx, "Generating speech with voice: "+voice)

	audio, err := e.r.speaker.Synthesize(opCtx, p.speechRequest())
	if err != nil {
		var apiErr *tts.APIError
		switch {
		case errors.As(err, &apiErr):
			e.finish(opCtx, domain.TaskStatusFailed, "",
				fmt.Sprintf("Text-to-speech API error: %d - %s", apiErr.StatusCode, apiErr.Body))
		case errors.Is(err, tts.ErrNotConfigured):
			e.finish(opCtx, domain.TaskStatusFailed, "", "Text-to-speech API key not configured.")
		default:
			e.finish(opCtx, domain.TaskStatusFailed, "", "Text-to-speech request failed: "+redact.Error(err))
		}
		return
	}

	e.note(opCtx, "Speech generation successful.")
	e.finish(opCtx, domain.TaskStatusCompleted, audio, "")
}
