package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
	"golang.org/x/sync/singleflight"
)

// ImageAPI is the set of image API calls the proxy forwards to.
type ImageAPI interface {
	ListImages(ctx context.Context, token string) ([]models.Image, error)
	GetImage(ctx context.Context, token, hash string) (*models.ImageContent, error)
	SearchImages(ctx context.Context, token, query string) ([]models.Image, error)
	UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error)
}

// ImageService checks the caller-side preconditions of each proxied call
// and rejects violations before any network call is made.
type ImageService struct {
	api ImageAPI
	// fetches coalesces identical concurrent image fetches. Content at a
	// hash is immutable, so sharing one response is safe; the key includes
	// the token so callers never share each other's authorization.
	fetches singleflight.Group
}

// NewImageService constructs an ImageService.
func NewImageService(api ImageAPI) *ImageService {
	return &ImageService{api: api}
}

// ListImages returns all image records.
func (s *ImageService) ListImages(ctx context.Context, token string) ([]models.Image, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	return s.api.ListImages(ctx, token)
}

// SearchImages returns the records matching query. An empty query is a
// validation error.
func (s *ImageService) SearchImages(ctx context.Context, token, query string) ([]models.Image, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	if strings.TrimSpace(query) == "" {
		return nil, common.Validation("query parameter is required")
	}
	return s.api.SearchImages(ctx, token, query)
}

// GetImage returns the bytes stored under hash. The token is optional.
func (s *ImageService) GetImage(ctx context.Context, token, hash string) (*models.ImageContent, error) {
	if hash == "" {
		return nil, common.Validation("image hash is required")
	}
	// The shared fetch outlives any single caller; backend.Client bounds
	// it with its own request timeout.
	shared := context.WithoutCancel(ctx)
	ch := s.fetches.DoChan(token+"\x00"+hash, func() (any, error) {
		return s.api.GetImage(shared, token, hash)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*models.ImageContent), nil
	}
}

// UploadImage forwards an image file. Empty and non-image payloads are
// rejected locally.
func (s *ImageService) UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	if err := ValidateImageFile(data); err != nil {
		return nil, err
	}
	return s.api.UploadImage(ctx, token, filename, data)
}

// ValidateImageFile rejects a missing file or one whose content does not
// sniff as an image.
func ValidateImageFile(data []byte) error {
	if len(data) == 0 {
		return common.Validation("file is required")
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return common.Validation("file is not an image (" + ct + ")")
	}
	return nil
}
