package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/imageprep"
	"github.com/forgeline/genrelay/internal/platform/studio"
)

// Vendor model identifiers
const (
	ImageModelNanoBananaPro = "MODEL_FOUR_NANO_BANANA_PRO"
	VideoModelSora2         = "SORA2"
	VideoModelVeo31         = "VEO_3_1"

	defaultAspect          = "SIXTEEN_BY_NINE"
	defaultImageResolution = "2K"
	videoResolution        = "720p"
)

// Strategy is the mode-specific part of the image and video pipelines:
// uploading reference media and shaping the submission.
type Strategy interface {
	Mode() domain.TaskMode

	// Prepare uploads the reference images in p and returns the job to
	// submit. Errors are definite: nothing has been submitted yet.
	Prepare(ctx context.Context, session Session, token string, p Params) (studio.SubmitRequest, error)
}

// StrategyFor returns the strategy of an account-backed mode.
func StrategyFor(mode domain.TaskMode) (Strategy, bool) {
	switch mode {
	case domain.TaskModeImage:
		return imageStrategy{}, true
	case domain.TaskModeVideo:
		return videoStrategy{}, true
	}
	return nil, false
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func uploadReference(ctx context.Context, session Session, token, payload string) (string, error) {
	png, err := imageprep.FromBase64(payload)
	if err != nil {
		return "", fmt.Errorf("prepare reference image: %w", err)
	}
	id, err := session.UploadImage(ctx, token, png)
	if err != nil {
		return "", fmt.Errorf("upload reference image: %w", err)
	}
	return id, nil
}

type imageStrategy struct{}

func (imageStrategy) Mode() domain.TaskMode { return domain.TaskModeImage }

func (imageStrategy) Prepare(
	ctx context.Context,
	session Session,
	token string,
	p Params,
) (studio.SubmitRequest, error) {
	var ids []string
	for _, img := range p.Images {
		id, err := uploadReference(ctx, session, token, img)
		if err != nil {
			return studio.SubmitRequest{}, err
		}
		ids = append(ids, id)
	}

	job := studio.ImageJob{
		Prompt:       p.Prompt,
		ImageSize:    orDefault(p.Size, defaultAspect),
		Count:        1,
		ModelType:    "MODEL_FOUR",
		ModelVersion: orDefault(p.Model, ImageModelNanoBananaPro),
		UserImageIDs: ids,
	}
	if job.ModelVersion == ImageModelNanoBananaPro {
		job.Resolution = orDefault(p.Resolution, defaultImageResolution)
	}
	return studio.SubmitRequest{Kind: studio.KindTextToImage, Body: job}, nil
}

type videoStrategy struct{}

func (videoStrategy) Mode() domain.TaskMode { return domain.TaskModeVideo }

func (videoStrategy) Prepare(
	ctx context.Context,
	session Session,
	token string,
	p Params,
) (studio.SubmitRequest, error) {
	job := studio.VideoJob{
		Prompt:          p.Prompt,
		Resolution:      videoResolution,
		AIPromptEnhance: true,
		Size:            orDefault(p.Size, defaultAspect),
		AddEndFrame:     false,
	}

	var imageID int64
	if len(p.Images) > 0 {
		id, err := uploadReference(ctx, session, token, p.Images[0])
		if err != nil {
			return studio.SubmitRequest{}, err
		}
		imageID, err = strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return studio.SubmitRequest{}, fmt.Errorf("upload reference image: non-numeric image id %q", id)
		}
	}

	kind := studio.KindTextToVideo
	if imageID != 0 {
		kind = studio.KindImageToVideo
		job.UserImageID = imageID
	}

	switch orDefault(p.Model, VideoModelSora2) {
	case VideoModelVeo31:
		job.LengthOfSecond = 8
		job.ModelType = "MODEL_FIVE"
		job.ModelVersion = "MODEL_FIVE_FAST_3"
	default:
		job.LengthOfSecond = 10
		if kind == studio.KindImageToVideo {
			job.ModelVersion = "MODEL_ELEVEN_IMAGE_TO_VIDEO_V2"
		} else {
			job.ModelType = "MODEL_ELEVEN"
			job.ModelVersion = "MODEL_ELEVEN_TEXT_TO_VIDEO_V2"
		}
	}
	return studio.SubmitRequest{Kind: kind, Body: job}, nil
}
