package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/atinyakov/imagedash/internal/guard"
	"github.com/atinyakov/imagedash/internal/models"
	"go.uber.org/zap"
)

// Validator resolves the identity behind a token.
type Validator interface {
	WhoAmI(ctx context.Context, token string) (*models.User, error)
}

// GuardOptions configure RouteGuard.
type GuardOptions struct {
	// Enforce applies the redirects. When false the guard only logs its
	// decision and lets every request through.
	Enforce bool
	// SecureCookie marks the cleared cookie Secure.
	SecureCookie bool
	Now          func() time.Time
}

// RouteGuard applies the guard rules to browser page requests. A cookie
// token is never trusted blindly: it must not be an expired JWT and must
// resolve through the validator. A token that fails either check is
// cleared from the browser. The validated user is stored in the request
// context.
func RouteGuard(v Validator, opts GuardOptions, logger *zap.Logger) func(http.Handler) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := models.SessionUnauthenticated
			ctx := r.Context()

			if token := CookieToken(r); token != "" {
				user, err := validate(ctx, v, token, opts.Now())
				if err != nil {
					logger.Info("discarding stored token", zap.String("path", r.URL.Path), zap.Error(err))
					ClearTokenCookie(w, opts.SecureCookie)
				} else {
					state = models.SessionAuthenticated
					ctx = WithUser(WithToken(ctx, token), user)
				}
			}

			d := guard.Decide(guard.View(r.URL.Path), state)
			if d.Action == guard.Redirect {
				if !opts.Enforce {
					logger.Debug("route guard not enforced",
						zap.String("path", r.URL.Path),
						zap.String("would_redirect_to", string(d.Target)),
					)
				} else {
					http.Redirect(w, r, string(d.Target), http.StatusSeeOther)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validate(ctx context.Context, v Validator, token string, now time.Time) (*models.User, error) {
	if guard.Expired(token, now) {
		return nil, errExpired
	}
	return v.WhoAmI(ctx, token)
}

type guardError string

func (e guardError) Error() string { return string(e) }

const errExpired guardError = "token expired"
