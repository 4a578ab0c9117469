// Package middleware provides HTTP middlewares for token extraction, the
// edge route guard and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/imagedash/internal/models"
)

type ctxKey string

const (
	tokenKey ctxKey = "token"
	userKey  ctxKey = "user"
)

// TokenCookie is the cookie holding the access token in the browser.
const TokenCookie = "token"

// BearerToken returns the token of an "Authorization: Bearer <token>"
// header, or "" when the header is missing or has another scheme.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("Bearer "):])
}

// CookieToken returns the token stored in TokenCookie, or "".
func CookieToken(r *http.Request) string {
	c, err := r.Cookie(TokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// RequireBearer rejects requests without a bearer token with 401 and
// stores the token in the request context for the handlers.
func RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

// OptionalBearer stores the bearer token, or failing that the cookie
// token, in the request context when one is present. Browsers load
// <img> sources with the cookie only.
func OptionalBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			token = CookieToken(r)
		}
		if token != "" {
			r = r.WithContext(WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

// WithToken returns a copy of ctx carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// GetTokenFromContext returns the access token stored by the middlewares,
// or "" if none.
func GetTokenFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(tokenKey).(string); ok {
		return s
	}
	return ""
}

// WithUser returns a copy of ctx carrying the validated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUserFromContext returns the user validated by RouteGuard, or nil.
func GetUserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// SetTokenCookie persists token in the browser. maxAge follows the
// token's lifetime; a non-positive value makes it a session cookie.
func SetTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	c := &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, c)
}

// ClearTokenCookie removes the token from the browser.
func ClearTokenCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
