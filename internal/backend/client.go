// Package backend is the HTTP client for the image API. Every call forwards
// the caller's bearer token verbatim and maps failures onto the error
// taxonomy in package common.
//
// The dashboard server points it at the image API; the terminal dashboard
// points it at the server's /api prefix, which mirrors the same routes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
)

const (
	// DefaultRequestTimeout bounds list, search, lookup and image calls.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultUploadTimeout bounds an upload.
	DefaultUploadTimeout = 60 * time.Second
	// DefaultImageContentType is assumed when the API omits Content-Type.
	DefaultImageContentType = "image/jpeg"

	maxDetailBytes = 64 << 10
)

// Options tune a Client. Zero values select the defaults.
type Options struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
}

// Client calls the image API at BaseURL.
type Client struct {
	baseURL        string
	http           *http.Client
	requestTimeout time.Duration
	uploadTimeout  time.Duration
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts Options) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           opts.HTTPClient,
		requestTimeout: opts.RequestTimeout,
		uploadTimeout:  opts.UploadTimeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = DefaultUploadTimeout
	}
	return c
}

// WhoAmI resolves the identity behind token via GET /me.
func (c *Client) WhoAmI(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	var user models.User
	if err := c.getJSON(ctx, token, "/me", &user); err != nil {
		return nil, fmt.Errorf("who am i: %w", err)
	}
	return &user, nil
}

// ListImages returns every image record via GET /images.
func (c *Client) ListImages(ctx context.Context, token string) ([]models.Image, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	var images []models.Image
	if err := c.getJSON(ctx, token, "/images", &images); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return models.NormalizeImages(images), nil
}

// SearchImages returns the records matching query via GET /search?q=.
func (c *Client) SearchImages(ctx context.Context, token, query string) ([]models.Image, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	if strings.TrimSpace(query) == "" {
		return nil, common.Validation("query parameter is required")
	}
	var images []models.Image
	if err := c.getJSON(ctx, token, "/search?q="+url.QueryEscape(query), &images); err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}
	return models.NormalizeImages(images), nil
}

// GetImage fetches the bytes stored under hash via GET /image/{hash}. The
// token is optional on this route and forwarded only when present.
func (c *Client) GetImage(ctx context.Context, token, hash string) (*models.ImageContent, error) {
	if hash == "" {
		return nil, common.Validation("image hash is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, token, "/image/"+url.PathEscape(hash), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", classify(err))
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultImageContentType
	}
	return &models.ImageContent{Data: data, ContentType: contentType}, nil
}

// UploadImage posts data as the multipart field "file" to POST /upload.
// The call is bounded by the upload timeout and fails with
// common.ErrTimeout when the API does not answer in time.
func (c *Client) UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	if len(data) == 0 {
		return nil, common.Validation("file is required")
	}
	if filename == "" {
		filename = "upload"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, token, "/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	var img models.Image
	if err := json.NewDecoder(resp.Body).Decode(&img); err != nil {
		return nil, fmt.Errorf("upload image: decode response: %w", classify(err))
	}
	img.Tags = models.NormalizeTags(img.Tags)
	return &img, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, token, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", classify(err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, token, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and turns transport failures and non-2xx responses into
// taxonomy errors. On success the caller owns resp.Body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		return nil, &common.BackendError{Status: resp.StatusCode, Detail: detail(raw)}
	}
	return resp, nil
}

// classify separates deadline failures from other transport failures.
// Decode errors that are not network errors pass through unchanged.
func classify(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", common.ErrTimeout, err)
	case errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", common.ErrTransport, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", common.ErrTransport, err)
	}
	return err
}

// detail extracts the API's error message from a JSON body of the form
// {"detail": ...} or {"error": ...}, falling back to the raw text.
func detail(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, v := range []any{body.Detail, body.Error} {
			switch v := v.(type) {
			case string:
				return v
			case nil:
			default:
				if b, err := json.Marshal(v); err == nil {
					return string(b)
				}
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
