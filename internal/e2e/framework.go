// Package e2e drives complete traveler workflows through the client against
// an in-process dev server: sign-in, planning, membership changes,
// notifications, reviews and chat.
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/travel-buddy/internal/app"
	"github.com/narvanalabs/travel-buddy/internal/devserver"
	"github.com/narvanalabs/travel-buddy/internal/session"
	"github.com/narvanalabs/travel-buddy/pkg/config"
	"github.com/narvanalabs/travel-buddy/pkg/logger"
)

// TestEnvironment is a seeded dev server plus the client configuration pointing at it.
type TestEnvironment struct {
	Server *devserver.Server
	HTTP   *httptest.Server
	Config *config.Config
}

// TestConfig holds knobs for the environment.
type TestConfig struct {
	// ReconnectBackoff is the chat reconnect wait.
	ReconnectBackoff time.Duration
	// MaxReconnects bounds chat reconnect attempts.
	MaxReconnects int
	// RefreshSkew is how early the access token is refreshed before a chat opens.
	RefreshSkew time.Duration
}

// DefaultTestConfig returns fast reconnect settings.
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		ReconnectBackoff: 10 * time.Millisecond,
		MaxReconnects:    5,
	}
}

// NewTestEnvironment starts a seeded dev server for the duration of the test.
func NewTestEnvironment(t *testing.T, tc *TestConfig) *TestEnvironment {
	t.Helper()
	if tc == nil {
		tc = DefaultTestConfig()
	}

	srv := devserver.NewServer(config.DevServerConfig{
		JWTSecret: "e2e-secret-key-that-is-long-enough",
		TokenTTL:  15 * time.Minute,
	}, devserver.WithLogger(logger.Discard().Logger))
	require.NoError(t, srv.Seed())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.DisconnectAll()
		ts.Close()
	})

	cfg := &config.Config{
		APIBaseURL:      ts.URL + "/api",
		WSBaseURL:       "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		HTTPTimeout:     5 * time.Second,
		TripCacheTTL:    time.Minute,
		ShutdownTimeout: 2 * time.Second,
		Chat: config.ChatConfig{
			MaxReconnects:    tc.MaxReconnects,
			ReconnectBackoff: tc.ReconnectBackoff,
			RefreshSkew:      tc.RefreshSkew,
		},
	}

	return &TestEnvironment{Server: srv, HTTP: ts, Config: cfg}
}

// Traveler is one signed-in client.
type Traveler struct {
	*app.App
	UserID int64
}

// SignIn creates a client with an in-memory session store and logs in.
func (env *TestEnvironment) SignIn(t *testing.T, username string) *Traveler {
	t.Helper()
	a := env.NewClient(t)

	s, err := a.Login(context.Background(), username, devserver.SeedPassword)
	require.NoError(t, err)
	return &Traveler{App: a, UserID: s.User.ID}
}

// NewClient creates a signed-out client.
func (env *TestEnvironment) NewClient(t *testing.T) *app.App {
	t.Helper()
	a := app.New(env.Config, session.NewMemoryStore(), logger.Discard().Logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), env.Config.ShutdownTimeout)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}
