package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/middleware"
	"github.com/atinyakov/imagedash/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestAuthHandler_Token(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		service      *fakeAuthService
		expectedCode int
		expectedJSON string
	}{
		{
			name:         "invalid JSON",
			body:         `not a json`,
			service:      staticAuth(),
			expectedCode: http.StatusBadRequest,
			expectedJSON: `{"error":"invalid request"}`,
		},
		{
			name:         "valid credentials",
			body:         `{"username":"alice","password":"secret"}`,
			service:      staticAuth(),
			expectedCode: http.StatusOK,
			expectedJSON: `{"access_token":"tok","token_type":"Bearer","expires_in":300}`,
		},
		{
			name:         "rejected credentials relay provider body",
			body:         `{"username":"alice","password":"wrong"}`,
			service:      staticAuth(),
			expectedCode: http.StatusUnauthorized,
			expectedJSON: `{"error":"Authentication failed","details":{"error":"invalid_grant"}}`,
		},
		{
			name:         "missing password",
			body:         `{"username":"alice"}`,
			service:      staticAuth(),
			expectedCode: http.StatusBadRequest,
			expectedJSON: `{"error":"Authentication failed","details":"validation error: username and password are required"}`,
		},
		{
			name: "provider unreachable",
			body: `{"username":"alice","password":"secret"}`,
			service: &fakeAuthService{authenticate: func(context.Context, string, string) (*models.TokenPayload, error) {
				return nil, &common.AuthError{Err: errors.New("connection refused")}
			}},
			expectedCode: http.StatusBadGateway,
			expectedJSON: `{"error":"Authentication failed","details":"connection refused"}`,
		},
		{
			name: "provider plain text body",
			body: `{"username":"alice","password":"secret"}`,
			service: &fakeAuthService{authenticate: func(context.Context, string, string) (*models.TokenPayload, error) {
				return nil, &common.AuthError{Status: http.StatusServiceUnavailable, Body: []byte("maintenance")}
			}},
			expectedCode: http.StatusServiceUnavailable,
			expectedJSON: `{"error":"Authentication failed","details":"maintenance"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewBufferString(tt.body))
			h := &AuthHandler{AuthService: tt.service, Logger: zap.NewNop()}

			h.Token(rec, req)

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.JSONEq(t, tt.expectedJSON, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := &AuthHandler{AuthService: staticAuth(), Logger: zap.NewNop()}

	t.Run("valid token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(middleware.WithToken(req.Context(), "tok"))

		h.Me(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"username":"alice","roles":["user"]}`, rec.Body.String())
	})

	t.Run("rejected token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(middleware.WithToken(req.Context(), "stale"))

		h.Me(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"invalid token"`)
		assert.Contains(t, rec.Body.String(), `"incident":`)
	})
}
