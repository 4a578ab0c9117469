package http

import (
	"context"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
)

// fakeAuthService implements AuthService for testing.
type fakeAuthService struct {
	authenticate func(ctx context.Context, username, password string) (*models.TokenPayload, error)
	whoAmI       func(ctx context.Context, token string) (*models.User, error)
}

func (f *fakeAuthService) Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error) {
	return f.authenticate(ctx, username, password)
}

func (f *fakeAuthService) WhoAmI(ctx context.Context, token string) (*models.User, error) {
	return f.whoAmI(ctx, token)
}

// staticAuth accepts alice/secret and the token "tok".
func staticAuth() *fakeAuthService {
	return &fakeAuthService{
		authenticate: func(_ context.Context, username, password string) (*models.TokenPayload, error) {
			if username == "" || password == "" {
				return nil, common.Validation("username and password are required")
			}
			if username != "alice" || password != "secret" {
				return nil, &common.AuthError{Status: 401, Body: []byte(`{"error":"invalid_grant"}`)}
			}
			return &models.TokenPayload{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 300}, nil
		},
		whoAmI: func(_ context.Context, token string) (*models.User, error) {
			if token != "tok" {
				return nil, &common.BackendError{Status: 401, Detail: "invalid token"}
			}
			return &models.User{Username: "alice", Roles: []string{"user"}}, nil
		},
	}
}

// fakeImageService implements ImageService for testing.
type fakeImageService struct {
	list   func(ctx context.Context, token string) ([]models.Image, error)
	search func(ctx context.Context, token, query string) ([]models.Image, error)
	get    func(ctx context.Context, token, hash string) (*models.ImageContent, error)
	upload func(ctx context.Context, token, filename string, data []byte) (*models.Image, error)
}

func (f *fakeImageService) ListImages(ctx context.Context, token string) ([]models.Image, error) {
	return f.list(ctx, token)
}

func (f *fakeImageService) SearchImages(ctx context.Context, token, query string) ([]models.Image, error) {
	return f.search(ctx, token, query)
}

func (f *fakeImageService) GetImage(ctx context.Context, token, hash string) (*models.ImageContent, error) {
	return f.get(ctx, token, hash)
}

func (f *fakeImageService) UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error) {
	return f.upload(ctx, token, filename, data)
}
