package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// Photo errors
var (
	ErrPhotoTooLarge = errors.New("photo exceeds maximum upload size")
	ErrInvalidPhoto  = errors.New("photo could not be decoded as an image")
)

const jpegQuality = 85

// PhotoLimits bounds an uploaded photo.
type PhotoLimits struct {
	// MaxBytes is the largest accepted upload.
	MaxBytes int64
	// MaxPixels is the longest edge kept after normalization.
	MaxPixels int
}

// NormalizePhoto decodes an uploaded photo, applies its EXIF orientation,
// shrinks it to fit limits.MaxPixels on its longest edge and re-encodes it as
// JPEG so the render worker always receives the same format.
func NormalizePhoto(r io.Reader, limits PhotoLimits) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limits.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if int64(len(raw)) > limits.MaxBytes {
		return nil, ErrPhotoTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhoto, err)
	}

	bounds := img.Bounds()
	if limits.MaxPixels > 0 && (bounds.Dx() > limits.MaxPixels || bounds.Dy() > limits.MaxPixels) {
		img = imaging.Fit(img, limits.MaxPixels, limits.MaxPixels, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode photo: %w", err)
	}
	return buf.Bytes(), nil
}
