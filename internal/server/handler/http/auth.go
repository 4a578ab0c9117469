// Package http provides the dashboard's HTTP surface: the JSON proxy
// under /api and the server-rendered pages.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/middleware"
	"github.com/atinyakov/imagedash/internal/models"
	"go.uber.org/zap"
)

// AuthService defines the authentication operations required by the
// HTTP handlers.
type AuthService interface {
	// Authenticate exchanges credentials for a token payload.
	Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error)
	// WhoAmI resolves a bearer token to its user.
	WhoAmI(ctx context.Context, token string) (*models.User, error)
}

// AuthHandler handles the token exchange and identity lookup endpoints.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	Logger      *zap.Logger
}

// TokenFailure is the body of a rejected token exchange.
type TokenFailure struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Token handles POST /api/auth/token. It expects a JSON body with
// "username" and "password" and returns the provider's token payload. On
// failure it answers with the provider's status and relays the provider's
// response body as "details".
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, TokenFailure{Error: "invalid request"})
		return
	}

	payload, err := h.AuthService.Authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		h.Logger.Info("token exchange failed",
			zap.String("username", creds.Username),
			zap.Int("status", common.StatusOf(err)),
			zap.Error(err),
		)
		if errors.Is(err, common.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, TokenFailure{Error: "Authentication failed", Details: err.Error()})
			return
		}
		writeJSON(w, common.StatusOf(err), TokenFailure{Error: "Authentication failed", Details: providerDetails(err)})
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

// providerDetails returns the provider body as JSON when it is JSON, as
// text otherwise.
func providerDetails(err error) any {
	var ae *common.AuthError
	if !errors.As(err, &ae) {
		return nil
	}
	if len(ae.Body) == 0 {
		if ae.Err != nil {
			return ae.Err.Error()
		}
		return nil
	}
	if json.Valid(ae.Body) {
		return json.RawMessage(ae.Body)
	}
	return string(ae.Body)
}

// Me handles GET /api/me and returns the user behind the bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.AuthService.WhoAmI(r.Context(), middleware.GetTokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
