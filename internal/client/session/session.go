// Package session holds the terminal client's authentication state: the
// current token, the user behind it and the lifecycle between them.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/atinyakov/imagedash/internal/client/events"
	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
	"go.uber.org/zap"
)

// User-facing messages recorded on a failed login.
const (
	MsgAuthenticationFailed = "Authentication failed. Please check your credentials."
	MsgUserLookupFailed     = "Failed to fetch user information"
	MsgStorageFailed        = "Could not save the session"
)

// TokenStorage persists the token between runs.
type TokenStorage interface {
	// LoadToken returns "" when no token is stored.
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Authenticator exchanges credentials for a token payload.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.TokenPayload, error)
}

// IdentityAPI resolves the identity behind a token.
type IdentityAPI interface {
	WhoAmI(ctx context.Context, token string) (*models.User, error)
}

// State is a snapshot of the session.
type State struct {
	Status models.SessionState
	User   *models.User
	Token  string
	// Error is the message of the last failed login, cleared on the next
	// attempt.
	Error string
}

// Authenticated reports whether the snapshot holds a validated token.
func (s State) Authenticated() bool {
	return s.Status == models.SessionAuthenticated
}

// Store owns the session state. It is safe for concurrent use; observers
// registered with Subscribe are called after every transition, outside
// the store's lock.
type Store struct {
	auth    Authenticator
	api     IdentityAPI
	storage TokenStorage
	log     *zap.Logger

	mu    sync.Mutex
	state State
	// busy is set while Login runs.
	busy bool

	changes events.Topic[State]
}

// New returns a Store in the Authenticating state; call Init to resolve
// the stored token.
func New(auth Authenticator, api IdentityAPI, storage TokenStorage, log *zap.Logger) *Store {
	return &Store{
		auth:    auth,
		api:     api,
		storage: storage,
		log:     log,
		state:   State{Status: models.SessionAuthenticating},
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the current token, or "" when unauthenticated.
func (s *Store) Token() string {
	return s.State().Token
}

// Subscribe registers fn to receive every new state.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

func (s *Store) set(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.changes.Publish(st)
}

// begin moves to Authenticating unless a login is already running.
func (s *Store) begin() bool {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return false
	}
	s.busy = true
	s.state = State{Status: models.SessionAuthenticating}
	st := s.state
	s.mu.Unlock()
	s.changes.Publish(st)
	return true
}

// finish ends a login with st.
func (s *Store) finish(st State) {
	s.mu.Lock()
	s.busy = false
	s.state = st
	s.mu.Unlock()
	s.changes.Publish(st)
}

// Init validates the stored token, if any, before trusting it. A token the
// backend rejects is removed from storage.
func (s *Store) Init(ctx context.Context) error {
	token, err := s.storage.LoadToken(ctx)
	if err != nil {
		s.log.Warn("cannot read stored session", zap.Error(err))
		s.set(State{Status: models.SessionUnauthenticated})
		return err
	}
	if token == "" {
		s.set(State{Status: models.SessionUnauthenticated})
		return nil
	}

	user, err := s.api.WhoAmI(ctx, token)
	if err != nil {
		s.log.Info("stored session rejected", zap.Error(err))
		s.clearStorage(ctx)
		s.set(State{Status: models.SessionUnauthenticated})
		return err
	}
	s.set(State{Status: models.SessionAuthenticated, User: user, Token: token})
	return nil
}

// Login authenticates, persists the token and resolves the user. The
// session becomes Authenticated only after all three succeed; on any
// failure it ends Unauthenticated with a message in State.Error.
func (s *Store) Login(ctx context.Context, username, password string) error {
	if !s.begin() {
		return common.ErrBusy
	}

	payload, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		s.log.Info("login rejected", zap.String("username", username), zap.Error(err))
		s.finish(State{Status: models.SessionUnauthenticated, Error: MsgAuthenticationFailed})
		return err
	}

	if err := s.storage.SaveToken(ctx, payload.AccessToken); err != nil {
		s.log.Error("cannot persist session", zap.Error(err))
		s.finish(State{Status: models.SessionUnauthenticated, Error: MsgStorageFailed})
		return err
	}

	user, err := s.api.WhoAmI(ctx, payload.AccessToken)
	if err != nil {
		s.log.Warn("identity lookup after login failed", zap.String("username", username), zap.Error(err))
		s.clearStorage(ctx)
		s.finish(State{Status: models.SessionUnauthenticated, Error: MsgUserLookupFailed})
		return err
	}

	s.log.Info("signed in", zap.String("username", user.Username))
	s.finish(State{Status: models.SessionAuthenticated, User: user, Token: payload.AccessToken})
	return nil
}

// WhoAmI refreshes the user behind the current token. A failure ends the
// session.
func (s *Store) WhoAmI(ctx context.Context) (*models.User, error) {
	token := s.Token()
	if token == "" {
		return nil, common.ErrUnauthorized
	}
	user, err := s.api.WhoAmI(ctx, token)
	if err != nil {
		s.end(ctx, token)
		return nil, err
	}

	s.mu.Lock()
	if s.state.Token != token {
		// Logged out or replaced meanwhile.
		s.mu.Unlock()
		return user, nil
	}
	s.state.User = user
	st := s.state
	s.mu.Unlock()
	s.changes.Publish(st)
	return user, nil
}

// Logout forgets the token and the user.
func (s *Store) Logout(ctx context.Context) {
	s.clearStorage(ctx)
	s.set(State{Status: models.SessionUnauthenticated})
}

// Invalidate ends the session when err reports an authorization failure
// of a call made with token, and reports whether it did. Other errors, and
// failures of a token the session no longer holds, leave it alone.
func (s *Store) Invalidate(ctx context.Context, token string, err error) bool {
	if !errors.Is(err, common.ErrUnauthorized) {
		return false
	}
	if !s.end(ctx, token) {
		return false
	}
	s.log.Info("session invalidated", zap.Error(err))
	return true
}

// end signs out if the session is still authenticated with token.
func (s *Store) end(ctx context.Context, token string) bool {
	s.mu.Lock()
	if s.state.Status != models.SessionAuthenticated || s.state.Token != token {
		s.mu.Unlock()
		return false
	}
	s.state = State{Status: models.SessionUnauthenticated}
	st := s.state
	s.mu.Unlock()

	s.clearStorage(ctx)
	s.changes.Publish(st)
	return true
}

func (s *Store) clearStorage(ctx context.Context) {
	if err := s.storage.ClearToken(ctx); err != nil {
		s.log.Warn("cannot clear stored session", zap.Error(err))
	}
}
