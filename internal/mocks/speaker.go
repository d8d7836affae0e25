package mocks

import (
	"context"

	"github.com/forgeline/genrelay/internal/platform/tts"
	"github.com/stretchr/testify/mock"
)

// TestifyMockSpeaker is a testify mock of the text-to-speech client.
type TestifyMockSpeaker struct {
	mock.Mock
}

// Synthesize is a mock implementation of tts.Client.Synthesize
func (m *TestifyMockSpeaker) Synthesize(ctx context.Context, req tts.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// ListVoices is a mock implementation of tts.Client.ListVoices
func (m *TestifyMockSpeaker) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	args := m.Called(ctx)
	if voices, ok := args.Get(0).([]tts.Voice); ok {
		return voices, args.Error(1)
	}
	return nil, args.Error(1)
}

// Configured is a mock implementation of tts.Client.Configured
func (m *TestifyMockSpeaker) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}
