package task

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/mocks"
	"github.com/forgeline/genrelay/internal/platform/studio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageStrategy(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		req, err := imageStrategy{}.Prepare(context.Background(), &mocks.MockSession{}, "tok", Params{Prompt: "a cat"})
		require.NoError(t, err)
		assert.Equal(t, studio.KindTextToImage, req.Kind)
		assert.Equal(t, studio.ImageJob{
			Prompt:       "a cat",
			ImageSize:    "SIXTEEN_BY_NINE",
			Count:        1,
			ModelType:    "MODEL_FOUR",
			ModelVersion: ImageModelNanoBananaPro,
			Resolution:   "2K",
		}, req.Body)
	})

	t.Run("other models carry no resolution", func(t *testing.T) {
		t.Parallel()

		req, err := imageStrategy{}.Prepare(context.Background(), &mocks.MockSession{}, "tok",
			Params{Prompt: "x", Model: "MODEL_FOUR_FLUX", Size: "ONE_BY_ONE", Resolution: "4K"})
		require.NoError(t, err)
		job := req.Body.(studio.ImageJob)
		assert.Equal(t, "MODEL_FOUR_FLUX", job.ModelVersion)
		assert.Equal(t, "ONE_BY_ONE", job.ImageSize)
		assert.Empty(t, job.Resolution)
	})

	t.Run("uploads every reference image as png", func(t *testing.T) {
		t.Parallel()

		session := &mocks.MockSession{}
		n := 0
		session.UploadImageFn = func(_ context.Context, token string, data []byte) (string, error) {
			assert.Equal(t, "tok", token)
			_, err := png.DecodeConfig(bytes.NewReader(data))
			assert.NoError(t, err)
			n++
			return []string{"a", "b"}[n-1], nil
		}

		req, err := imageStrategy{}.Prepare(context.Background(), session, "tok",
			Params{Prompt: "x", Images: []string{pngBase64(t, 4, 4), "data:image/png;base64," + pngBase64(t, 2, 2)}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, req.Body.(studio.ImageJob).UserImageIDs)
	})

	t.Run("upload failure", func(t *testing.T) {
		t.Parallel()

		session := &mocks.MockSession{}
		session.UploadImageFn = func(context.Context, string, []byte) (string, error) {
			return "", studio.ErrUpload
		}

		_, err := imageStrategy{}.Prepare(context.Background(), session, "tok",
			Params{Prompt: "x", Images: []string{pngBase64(t, 4, 4)}})
		assert.ErrorIs(t, err, studio.ErrUpload)
	})
}

func TestVideoStrategy(t *testing.T) {
	t.Parallel()

	numericUpload := func() *mocks.MockSession {
		return &mocks.MockSession{
			UploadImageFn: func(context.Context, string, []byte) (string, error) { return "42", nil },
		}
	}

	tests := []struct {
		name     string
		session  *mocks.MockSession
		params   Params
		wantKind studio.SubmitKind
		want     studio.VideoJob
	}{
		{
			name:     "text to video defaults to sora",
			session:  &mocks.MockSession{},
			params:   Params{Prompt: "waves"},
			wantKind: studio.KindTextToVideo,
			want: studio.VideoJob{
				Prompt:          "waves",
				Resolution:      "720p",
				LengthOfSecond:  10,
				AIPromptEnhance: true,
				Size:            "SIXTEEN_BY_NINE",
				ModelType:       "MODEL_ELEVEN",
				ModelVersion:    "MODEL_ELEVEN_TEXT_TO_VIDEO_V2",
			},
		},
		{
			name:     "image to video with sora",
			session:  numericUpload(),
			params:   Params{Prompt: "waves", Images: []string{"IMAGE"}},
			wantKind: studio.KindImageToVideo,
			want: studio.VideoJob{
				Prompt:          "waves",
				Resolution:      "720p",
				LengthOfSecond:  10,
				AIPromptEnhance: true,
				Size:            "SIXTEEN_BY_NINE",
				ModelVersion:    "MODEL_ELEVEN_IMAGE_TO_VIDEO_V2",
				UserImageID:     42,
			},
		},
		{
			name:     "veo",
			session:  &mocks.MockSession{},
			params:   Params{Prompt: "waves", Model: VideoModelVeo31, Size: "NINE_BY_SIXTEEN"},
			wantKind: studio.KindTextToVideo,
			want: studio.VideoJob{
				Prompt:          "waves",
				Resolution:      "720p",
				LengthOfSecond:  8,
				AIPromptEnhance: true,
				Size:            "NINE_BY_SIXTEEN",
				ModelType:       "MODEL_FIVE",
				ModelVersion:    "MODEL_FIVE_FAST_3",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := tc.params
			if len(p.Images) > 0 {
				p.Images = []string{pngBase64(t, 8, 8)}
			}
			req, err := videoStrategy{}.Prepare(context.Background(), tc.session, "tok", p)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKind, req.Kind)
			assert.Equal(t, tc.want, req.Body)
		})
	}
}

func TestVideoStrategy_NonNumericImageID(t *testing.T) {
	t.Parallel()

	_, err := videoStrategy{}.Prepare(context.Background(), &mocks.MockSession{}, "tok",
		Params{Prompt: "x", Images: []string{pngBase64(t, 4, 4)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric image id")
}

func TestStrategyFor(t *testing.T) {
	t.Parallel()

	s, ok := StrategyFor(domain.TaskModeImage)
	require.True(t, ok)
	assert.Equal(t, domain.TaskModeImage, s.Mode())

	s, ok = StrategyFor(domain.TaskModeVideo)
	require.True(t, ok)
	assert.Equal(t, domain.TaskModeVideo, s.Mode())

	_, ok = StrategyFor(domain.TaskModeTTS)
	assert.False(t, ok)
}
