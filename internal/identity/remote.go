package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
)

// Remote authenticates through the dashboard server's token route.
type Remote struct {
	// URL is the full address of POST /api/auth/token.
	URL    string
	Client *http.Client
}

// NewRemote returns a Remote for the dashboard server at baseURL.
func NewRemote(baseURL string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{URL: strings.TrimRight(baseURL, "/") + "/api/auth/token", Client: client}
}

// Authenticate posts the credentials as JSON and decodes the token payload.
func (r *Remote) Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error) {
	if username == "" || password == "" {
		return nil, common.Validation("username and password are required")
	}

	body, err := json.Marshal(models.Credentials{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, &common.AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &common.AuthError{Status: resp.StatusCode, Body: detail}
	}

	var payload models.TokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &common.AuthError{Err: fmt.Errorf("decode token payload: %w", err)}
	}
	if payload.AccessToken == "" {
		return nil, &common.AuthError{Err: errors.New("token payload has no access_token")}
	}
	return &payload, nil
}
