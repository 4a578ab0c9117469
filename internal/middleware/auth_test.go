package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc", "abc"},
		{"lower case scheme", "bearer abc", "abc"},
		{"basic", "Basic Zm9vOmJhcg==", ""},
		{"missing", "", ""},
		{"scheme only", "Bearer", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}

func TestRequireBearer(t *testing.T) {
	var got string
	h := RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetTokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/images", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
	})

	t.Run("token forwarded", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/images", nil)
		r.Header.Set("Authorization", "Bearer abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "abc", got)
	})
}

func TestOptionalBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"header wins", "Bearer from-header", "from-cookie", "from-header"},
		{"cookie fallback", "", "from-cookie", "from-cookie"},
		{"anonymous", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			called := false
			h := OptionalBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got = GetTokenFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/api/image/abc", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: TokenCookie, Value: tt.cookie})
			}
			h.ServeHTTP(httptest.NewRecorder(), r)

			assert.True(t, called)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenCookies(t *testing.T) {
	rr := httptest.NewRecorder()
	SetTokenCookie(rr, "abc", 5*time.Minute, true)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, TokenCookie, cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, 300, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	rr = httptest.NewRecorder()
	ClearTokenCookie(rr, false)
	cookies = rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
