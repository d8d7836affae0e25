// Package imageprep turns caller-supplied reference images into the PNG
// uploads the generation vendor accepts.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the webp decoder with image.Decode
)

// MaxSide is the longest edge, in pixels, an uploaded image may have.
const MaxSide = 3000

var (
	// ErrInvalidEncoding is returned when the payload is not valid base64.
	ErrInvalidEncoding = errors.New("image is not valid base64")

	// ErrUnsupportedImage is returned when the payload cannot be decoded as an image.
	ErrUnsupportedImage = errors.New("unsupported image data")
)

// DecodeBase64 decodes a base64 image payload. A data URL prefix such as
// "data:image/jpeg;base64," is accepted and stripped.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
		}
	}
	if len(data) == 0 {
		return nil, ErrInvalidEncoding
	}
	return data, nil
}

// Normalize decodes an image, scales it down so that neither side exceeds
// MaxSide while keeping its aspect ratio, and re-encodes it as PNG.
func Normalize(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	img = fit(img)

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// FromBase64 is DecodeBase64 followed by Normalize.
func FromBase64(payload string) ([]byte, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return Normalize(data)
}

func fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest <= MaxSide {
		return img
	}

	scale := float64(MaxSide) / float64(longest)
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}
