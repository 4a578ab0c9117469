// Package identity exchanges user credentials for an access token.
//
// Gateway talks to an OpenID Connect token endpoint directly with the
// password grant. Remote talks to the dashboard server's /api/auth/token
// route, which in turn uses a Gateway.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config locates the identity provider. Realm, client id and client secret
// are deployment settings, never runtime input.
type Config struct {
	// BaseURL is the provider root, e.g. http://keycloak:8080.
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
}

// TokenURL returns the realm's OpenID Connect token endpoint.
func (c Config) TokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(c.BaseURL, "/"), c.Realm)
}

// Gateway performs password-grant exchanges against the provider.
type Gateway struct {
	oauth  *oauth2.Config
	client *http.Client
	log    *zap.Logger
	now    func() time.Time
}

// NewGateway builds a Gateway. client may be nil to use http.DefaultClient.
func NewGateway(cfg Config, client *http.Client, log *zap.Logger) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Authenticate exchanges username and password for a token payload.
// Provider rejections and unreachable providers both yield a
// *common.AuthError matching common.ErrAuthenticationFailed.
func (g *Gateway) Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error) {
	if username == "" || password == "" {
		return nil, common.Validation("username and password are required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			g.log.Warn("identity provider rejected credentials",
				zap.Int("status", re.Response.StatusCode),
				zap.String("error_code", re.ErrorCode),
				zap.String("user", username),
			)
			return nil, &common.AuthError{Status: re.Response.StatusCode, Body: re.Body, Err: err}
		}
		g.log.Error("identity provider unreachable", zap.Error(err))
		return nil, &common.AuthError{Err: err}
	}

	return g.payload(tok), nil
}

func (g *Gateway) payload(tok *oauth2.Token) *models.TokenPayload {
	p := &models.TokenPayload{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		p.Scope = scope
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		p.ExpiresIn = int64(v)
	default:
		if !tok.Expiry.IsZero() {
			p.ExpiresIn = int64(tok.Expiry.Sub(g.now()).Round(time.Second).Seconds())
		}
	}
	return p
}
