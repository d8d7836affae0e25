package studio

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when a credential cannot open a session.
	ErrAuthentication = errors.New("studio authentication failed")

	// ErrUpload is returned when a reference image is not accepted.
	ErrUpload = errors.New("studio image upload failed")

	// ErrSubmissionUnknown marks a submission whose outcome could not be
	// observed. The vendor may still have created the job.
	ErrSubmissionUnknown = errors.New("studio submission outcome unknown")

	// ErrListing is returned when the recent-jobs listing cannot be read.
	ErrListing = errors.New("studio job listing failed")
)

// RejectedError is an application-level refusal of a submission.
type RejectedError struct {
	Code    int
	Message string
	Body    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("studio rejected submission: code %d: %s", e.Code, e.Message)
}

// IsRejected reports whether err is a definite refusal of a submission.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
