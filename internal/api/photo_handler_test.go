package api

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/platform/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// normalizingPhotoStore runs the real normalization and keeps the result.
type normalizingPhotoStore struct {
	saved map[string][]byte
}

func (s *normalizingPhotoStore) SavePhoto(_ context.Context, deviceID uuid.UUID, r io.Reader, limits storage.PhotoLimits) (string, error) {
	data, err := storage.NormalizePhoto(r, limits)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("photos/%s/%d.jpg", deviceID, len(s.saved))
	s.saved[key] = data
	return key, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPhotoHandler_Upload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	photos := &normalizingPhotoStore{saved: map[string][]byte{}}
	h := NewPhotoHandler(photos, storage.PhotoLimits{MaxBytes: 1 << 20, MaxPixels: 64}, f.log)

	upload := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Upload(rec, asDevice(req, f.device))
		return rec
	}

	t.Run("raw image body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/photos", bytes.NewReader(testPNG(t, 32, 32)))
		req.Header.Set("Content-Type", "image/png")

		rec := upload(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ref := decode[PhotoResponse](t, rec).PhotoRef
		assert.Contains(t, photos.saved, ref)
	})

	t.Run("multipart form", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("photo", "shopper.png")
		require.NoError(t, err)
		_, err = part.Write(testPNG(t, 16, 16))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/photos", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := upload(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("not an image", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/photos", bytes.NewReader([]byte("plain text")))
		assert.Equal(t, http.StatusBadRequest, upload(req).Code)
	})

	t.Run("multipart without photo field", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("note", "hi"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/photos", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, upload(req).Code)
	})
}

func TestPhotoHandler_UploadTooLarge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	photos := &normalizingPhotoStore{saved: map[string][]byte{}}
	h := NewPhotoHandler(photos, storage.PhotoLimits{MaxBytes: 1024, MaxPixels: 64}, f.log)

	req := httptest.NewRequest(http.MethodPost, "/api/photos", bytes.NewReader(make([]byte, 4096)))
	rec := httptest.NewRecorder()
	h.Upload(rec, asDevice(req, f.device))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, photos.saved)
}
