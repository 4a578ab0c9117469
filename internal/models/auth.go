package models

import "slices"

// TokenPayload is the identity provider's answer to a successful password
// exchange, relayed to the caller as-is.
type TokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Credentials is the login form submitted by a user.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the identity resolved by the backend's /me lookup.
type User struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// SessionState is a step of the session lifecycle:
// Unauthenticated -> Authenticating -> Authenticated, and back to
// Unauthenticated on logout or an authorization failure.
type SessionState int

const (
	SessionUnauthenticated SessionState = iota
	SessionAuthenticating
	SessionAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case SessionUnauthenticated:
		return "unauthenticated"
	case SessionAuthenticating:
		return "authenticating"
	case SessionAuthenticated:
		return "authenticated"
	}
	return "unknown"
}
