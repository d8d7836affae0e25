package task

import (
	"errors"
	"fmt"

	"github.com/forgeline/genrelay/internal/domain"
)

var (
	// ErrCapacityReached is returned by Create when the admission ceiling
	// is reached. The returned error is a *CapacityError.
	ErrCapacityReached = errors.New("maximum concurrent tasks reached")

	// ErrStopped is returned by Create after Stop.
	ErrStopped = errors.New("task runner stopped")

	// ErrPromptRequired is returned for image and video tasks without a prompt.
	ErrPromptRequired = fmt.Errorf("%w: prompt is required", domain.ErrValidation)

	// ErrTextRequired is returned for tts tasks without text.
	ErrTextRequired = fmt.Errorf("%w: text is required", domain.ErrValidation)
)

// CapacityError reports the admission state that caused a rejection.
type CapacityError struct {
	Active int
	Max    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Currently %d/%d tasks running. Please wait.", e.Active, e.Max)
}

// Is makes errors.Is(err, ErrCapacityReached) hold.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityReached
}
