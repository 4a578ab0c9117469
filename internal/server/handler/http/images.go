package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/middleware"
	"github.com/atinyakov/imagedash/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MaxUploadSize bounds the multipart body accepted by the upload routes.
const MaxUploadSize = 32 << 20

// ImageCacheControl is sent with image bytes. Content under a hash never
// changes.
const ImageCacheControl = "public, max-age=86400"

// ImageService defines the proxied image operations.
type ImageService interface {
	ListImages(ctx context.Context, token string) ([]models.Image, error)
	SearchImages(ctx context.Context, token, query string) ([]models.Image, error)
	GetImage(ctx context.Context, token, hash string) (*models.ImageContent, error)
	UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error)
}

// ImageHandler serves the image routes under /api.
type ImageHandler struct {
	ImageService ImageService
	Logger       *zap.Logger
}

// List handles GET /api/images.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.ImageService.ListImages(r.Context(), middleware.GetTokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NormalizeImages(images))
}

// Search handles GET /api/search?q=.
func (h *ImageHandler) Search(w http.ResponseWriter, r *http.Request) {
	images, err := h.ImageService.SearchImages(r.Context(), middleware.GetTokenFromContext(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NormalizeImages(images))
}

// Get handles GET /api/image/{hash} and streams the image bytes with a
// long-lived cache header.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	img, err := h.ImageService.GetImage(r.Context(), middleware.GetTokenFromContext(r.Context()), chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", ImageCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// Upload handles POST /api/upload with the image in multipart field
// "file".
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	filename, data, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	img, err := h.ImageService.UploadImage(r.Context(), middleware.GetTokenFromContext(r.Context()), filename, data)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

// readUpload returns the file posted in multipart field "file".
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, common.Validation("file is too large")
		}
		return "", nil, common.Validation("file is required")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, common.Validation("could not read file")
	}
	return hdr.Filename, data, nil
}
