package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/web/api"
)

// Authenticator performs the credential and refresh exchanges with the server.
type Authenticator interface {
	Login(ctx context.Context, usernameOrEmail, password string) (*api.LoginResponse, error)
	RefreshToken(ctx context.Context, refresh string) (string, error)
}

// TeardownHook runs at logout so no per-user state outlives the session.
type TeardownHook func(ctx context.Context)

// Manager owns the current session. It is the TokenSource for the API client.
type Manager struct {
	mu        sync.RWMutex
	refreshes singleflight.Group
	store     Store
	auth      Authenticator
	current   *Session
	hooks     []TeardownHook
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager backed by store.
func NewManager(store Store, auth Authenticator, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		auth:   auth,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads a persisted session, if any. It reports whether one was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	s, err := m.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Debug("session restored", "user_id", s.User.ID)
	return true, nil
}

// Login authenticates and starts a new session, replacing any previous one.
func (m *Manager) Login(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	if usernameOrEmail == "" || password == "" {
		var fields apperrors.FieldErrors
		if usernameOrEmail == "" {
			fields.Add("usernameOrEmail", "required")
		}
		if password == "" {
			fields.Add("password", "required")
		}
		return nil, fields.ToError()
	}

	resp, err := m.auth.Login(ctx, usernameOrEmail, password)
	if err != nil {
		return nil, err
	}

	s := &Session{
		User:      resp.User,
		Tokens:    resp.Tokens,
		CreatedAt: m.now(),
	}
	if claims, err := ParseClaims(resp.Tokens.Access); err == nil {
		s.ExpiresAt = claims.ExpiresAt
		if s.User.ID == 0 {
			s.User.ID = claims.UserID
		} else if claims.UserID != s.User.ID {
			m.logger.Warn("token subject differs from login user",
				"user_id", s.User.ID,
				"token_user_id", claims.UserID,
			)
		}
	}

	if prev, ok := m.Current(); ok && prev.User.ID != s.User.ID {
		m.teardown(ctx)
	}

	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Info("signed in", "user_id", s.User.ID, "username", s.User.Username)
	c := *s
	return &c, nil
}

// Logout ends the session, runs teardown hooks and clears persistence.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	had := m.current != nil
	userID := int64(0)
	if had {
		userID = m.current.User.ID
	}
	m.current = nil
	m.mu.Unlock()

	m.teardown(ctx)

	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	if had {
		m.logger.Info("signed out", "user_id", userID)
	}
	return nil
}

// OnLogout registers a hook run at every logout (and at a login that switches user).
func (m *Manager) OnLogout(hook TeardownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

func (m *Manager) teardown(ctx context.Context) {
	m.mu.RLock()
	hooks := make([]TeardownHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
}

// Current returns a copy of the session.
func (m *Manager) Current() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, false
	}
	c := *m.current
	return &c, true
}

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool {
	_, ok := m.Current()
	return ok
}

// UserID returns the signed-in user's id, or 0.
func (m *Manager) UserID() int64 {
	if s, ok := m.Current(); ok {
		return s.User.ID
	}
	return 0
}

// AccessToken implements api.TokenSource.
func (m *Manager) AccessToken() string {
	if s, ok := m.Current(); ok {
		return s.Tokens.Access
	}
	return ""
}

// Refresh implements api.TokenSource. Concurrent callers share one exchange
// with the server, and a failed refresh signs the user out.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.refreshes.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	s, ok := m.Current()
	if !ok || s.Tokens.Refresh == "" {
		return "", apperrors.ErrSessionExpired
	}

	access, err := m.auth.RefreshToken(ctx, s.Tokens.Refresh)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.logger.Warn("token refresh failed, signing out", "user_id", s.User.ID, "error", err)
		if lerr := m.Logout(context.WithoutCancel(ctx)); lerr != nil {
			m.logger.Error("clearing session after failed refresh", "error", lerr)
		}
		return "", apperrors.ErrSessionExpired.WithCause(err)
	}

	s.Tokens.Access = access
	if claims, cerr := ParseClaims(access); cerr == nil {
		s.ExpiresAt = claims.ExpiresAt
	}

	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return "", apperrors.ErrSessionExpired
	}
	m.current.Tokens.Access = s.Tokens.Access
	m.current.ExpiresAt = s.ExpiresAt
	saved := *m.current
	m.mu.Unlock()

	if err := m.store.Save(ctx, &saved); err != nil {
		m.logger.Warn("persisting refreshed token", "error", err)
	}
	return access, nil
}

// EnsureFresh refreshes the access token ahead of expiry.
func (m *Manager) EnsureFresh(ctx context.Context, skew time.Duration) error {
	s, ok := m.Current()
	if !ok {
		return apperrors.ErrUnauthenticated
	}
	claims := Claims{UserID: s.User.ID, ExpiresAt: s.ExpiresAt}
	if !claims.Expired(m.now(), skew) {
		return nil
	}
	_, err := m.Refresh(ctx)
	return err
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
