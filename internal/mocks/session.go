package mocks

import (
	"context"
	"sync"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/studio"
)

// MockSession is a vendor session with function fields. A nil field
// succeeds with a fixed value: token "token-<email>", image id "img-1",
// job id "job-1" and an empty listing.
type MockSession struct {
	AuthenticateFn func(ctx context.Context, cred studio.Credential) (string, error)
	UploadImageFn  func(ctx context.Context, token string, image []byte) (string, error)
	SubmitFn       func(ctx context.Context, token string, req studio.SubmitRequest) (string, error)
	ListRecentFn   func(ctx context.Context, token string, mode domain.TaskMode) ([]studio.Job, error)

	mu    sync.Mutex
	calls map[string]int
	subs  []studio.SubmitRequest
}

func (m *MockSession) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how many times the named method was called.
func (m *MockSession) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Submissions returns every request passed to Submit.
func (m *MockSession) Submissions() []studio.SubmitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]studio.SubmitRequest, len(m.subs))
	copy(out, m.subs)
	return out
}

// Authenticate records the call and delegates to AuthenticateFn.
func (m *MockSession) Authenticate(ctx context.Context, cred studio.Credential) (string, error) {
	m.record("Authenticate")
	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx, cred)
	}
	return "token-" + cred.Email, nil
}

// UploadImage records the call and delegates to UploadImageFn.
func (m *MockSession) UploadImage(ctx context.Context, token string, image []byte) (string, error) {
	m.record("UploadImage")
	if m.UploadImageFn != nil {
		return m.UploadImageFn(ctx, token, image)
	}
	return "img-1", nil
}

// Submit records the call and delegates to SubmitFn.
func (m *MockSession) Submit(ctx context.Context, token string, req studio.SubmitRequest) (string, error) {
	m.record("Submit")
	m.mu.Lock()
	m.subs = append(m.subs, req)
	m.mu.Unlock()
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, token, req)
	}
	return "job-1", nil
}

// ListRecent records the call and delegates to ListRecentFn.
func (m *MockSession) ListRecent(ctx context.Context, token string, mode domain.TaskMode) ([]studio.Job, error) {
	m.record("ListRecent")
	if m.ListRecentFn != nil {
		return m.ListRecentFn(ctx, token, mode)
	}
	return nil, nil
}
