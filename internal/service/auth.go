// Package service provides the business logic behind the dashboard's API
// routes, delegating the network work to the identity provider and the
// image API.
package service

import (
	"context"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
)

// Authenticator exchanges credentials for a token payload.
type Authenticator interface {
	// Authenticate returns the provider's token payload, or an error
	// matching common.ErrAuthenticationFailed.
	Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error)
}

// IdentityAPI resolves the identity behind a bearer token.
type IdentityAPI interface {
	WhoAmI(ctx context.Context, token string) (*models.User, error)
}

// AuthService implements login and identity lookup.
type AuthService struct {
	gateway Authenticator
	api     IdentityAPI
}

// NewAuthService constructs an AuthService.
func NewAuthService(gateway Authenticator, api IdentityAPI) *AuthService {
	return &AuthService{gateway: gateway, api: api}
}

// Authenticate forwards the credentials to the identity provider. Nothing is
// persisted.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error) {
	return s.gateway.Authenticate(ctx, username, password)
}

// WhoAmI resolves token to a user. A missing token fails with
// common.ErrUnauthorized without calling the API.
func (s *AuthService) WhoAmI(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	return s.api.WhoAmI(ctx, token)
}
