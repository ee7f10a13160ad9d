package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/platform/storage"
)

// photoFormField names the multipart field holding the photo.
const photoFormField = "photo"

// multipartOverhead is allowed on top of the photo size for form framing.
const multipartOverhead = 64 << 10

// PhotoStore normalizes and stores shopper photos.
type PhotoStore interface {
	SavePhoto(ctx context.Context, deviceID uuid.UUID, r io.Reader, limits storage.PhotoLimits) (string, error)
}

// PhotoHandler accepts shopper photo uploads.
type PhotoHandler struct {
	photos PhotoStore
	limits storage.PhotoLimits
	logger *slog.Logger
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(photos PhotoStore, limits storage.PhotoLimits, logger *slog.Logger) *PhotoHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for PhotoHandler")
	}
	return &PhotoHandler{
		photos: photos,
		limits: limits,
		logger: logger.With(slog.String("component", "photo_handler")),
	}
}

// Upload handles POST /api/photos. The photo arrives either as the "photo"
// field of a multipart form or as a raw image body.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	device, ok := requireDevice(w, r, log)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBytes+multipartOverhead)

	body, err := h.photoBody(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	ref, err := h.photos.SavePhoto(r.Context(), device.ID, body, h.limits)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = storage.ErrPhotoTooLarge
		}
		HandleAPIError(w, r, err)
		return
	}

	log.Debug("photo uploaded", "photo_ref", ref)
	shared.RespondWithJSON(w, r, http.StatusCreated, PhotoResponse{PhotoRef: ref})
}

func (h *PhotoHandler) photoBody(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, nil
	}

	if err := r.ParseMultipartForm(h.limits.MaxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, storage.ErrPhotoTooLarge
		}
		return nil, storage.ErrInvalidPhoto
	}
	file, _, err := r.FormFile(photoFormField)
	if err != nil {
		return nil, storage.ErrInvalidPhoto
	}
	return file, nil
}
