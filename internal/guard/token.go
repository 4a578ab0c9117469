package guard

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expired reports whether token is a JWT whose exp claim lies before now.
// The signature is not verified: this is only a shortcut that spares a
// backend lookup for tokens that are certainly stale. Opaque tokens and
// tokens without exp report false and must still be validated.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && !exp.After(now)
}

// ExpiresAt returns the exp claim of a JWT without verifying it.
func ExpiresAt(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
