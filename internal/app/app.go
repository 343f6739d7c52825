// Package app wires the travel-buddy components for one signed-in user and
// tears them down at logout.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/narvanalabs/travel-buddy/internal/chat"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/membership"
	"github.com/narvanalabs/travel-buddy/internal/notifications"
	"github.com/narvanalabs/travel-buddy/internal/planner"
	"github.com/narvanalabs/travel-buddy/internal/retry"
	"github.com/narvanalabs/travel-buddy/internal/reviews"
	"github.com/narvanalabs/travel-buddy/internal/session"
	"github.com/narvanalabs/travel-buddy/pkg/config"
	"github.com/narvanalabs/travel-buddy/web/api"
)

// App holds every component of the client.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	client *api.Client
	cache  *api.TripCache

	Session       *session.Manager
	Trips         *membership.Coordinator
	Reviews       *reviews.Ledger
	Notifications *notifications.Aggregator
	Planner       *planner.Planner

	mu    sync.Mutex
	chats map[int64]*chat.Conn
}

// New wires the client around store.
func New(cfg *config.Config, store session.Store, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	base := api.NewClient(cfg.APIBaseURL,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithLogger(logger),
	)
	sess := session.NewManager(store, base, session.WithLogger(logger))
	client := base.WithTokenSource(sess)
	cache := api.NewTripCache(cfg.TripCacheTTL)

	a := &App{
		cfg:           cfg,
		logger:        logger,
		client:        client,
		cache:         cache,
		Session:       sess,
		Trips:         membership.NewCoordinator(client, sess, membership.WithCache(cache), membership.WithLogger(logger)),
		Reviews:       reviews.NewLedger(client, reviews.WithLogger(logger)),
		Notifications: notifications.NewAggregator(client, logger),
		Planner:       planner.NewPlanner(client, cache, planner.WithLogger(logger)),
		chats:         make(map[int64]*chat.Conn),
	}

	// Hooks run last-registered first.
	sess.OnLogout(func(ctx context.Context) { cache.Invalidate() })
	sess.OnLogout(func(ctx context.Context) { a.Reviews.Reset() })
	sess.OnLogout(func(ctx context.Context) { a.Notifications.Reset() })
	sess.OnLogout(a.closeChats)

	return a
}

// Open wires the client with the persisted session store in cfg.SessionDir.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := session.OpenBadgerStore(cfg.SessionDir)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	a := New(cfg, store, logger)
	if _, err := a.Session.Restore(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	return a, nil
}

// Client returns the authenticated API client.
func (a *App) Client() *api.Client {
	return a.client
}

// Login signs in and preloads the user's reviews.
func (a *App) Login(ctx context.Context, usernameOrEmail, password string) (*session.Session, error) {
	s, err := a.Session.Login(ctx, usernameOrEmail, password)
	if err != nil {
		return nil, err
	}
	if err := a.Reviews.Load(ctx); err != nil {
		a.logger.Warn("loading reviews after login", "error", err)
	}
	return s, nil
}

// Logout ends the session and drops all per-user state.
func (a *App) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

// RequireSession fails with an authorization error when nobody is signed in.
func (a *App) RequireSession() error {
	if !a.Session.Authenticated() {
		return apperrors.ErrUnauthenticated.WithMessage("not signed in, run login first")
	}
	return nil
}

// OpenChat connects to a trip's chat room, reusing a live connection.
func (a *App) OpenChat(ctx context.Context, tripID int64) (*chat.Conn, error) {
	if err := a.RequireSession(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if c, ok := a.chats[tripID]; ok && !c.State().IsTerminal() {
		a.mu.Unlock()
		return c, nil
	}
	a.mu.Unlock()

	// The websocket handshake carries the token in the URL and has no 401
	// retry, so refresh up front when it is about to lapse.
	if err := a.Session.EnsureFresh(ctx, a.cfg.Chat.RefreshSkew); err != nil {
		return nil, err
	}

	logger := a.logger.With("trip_id", tripID)
	policy := retry.NewManager(
		retry.WithStrategy(&retry.Strategy{
			MaxAttempts:     a.cfg.Chat.MaxReconnects,
			RetryableErrors: retry.DefaultStrategy().RetryableErrors,
			BackoffDuration: a.cfg.Chat.ReconnectBackoff,
		}),
		retry.WithNotificationCallback(func(n *retry.Notification) {
			logger.Info("chat reconnect scheduled",
				"attempt", n.AttemptNumber,
				"max_attempts", n.MaxAttempts,
				"next_in", n.NextIn,
				"reason", n.Reason,
			)
		}),
	)

	conn := chat.New(a.cfg.WSBaseURL, tripID, a.Session,
		chat.WithREST(a.client),
		chat.WithRetry(policy),
		chat.WithLogger(a.logger),
	)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if prev, ok := a.chats[tripID]; ok && prev != conn {
		_ = prev.Close()
	}
	a.chats[tripID] = conn
	a.mu.Unlock()
	return conn, nil
}

// CloseChat disconnects a trip's chat room, if open.
func (a *App) CloseChat(tripID int64) error {
	a.mu.Lock()
	c, ok := a.chats[tripID]
	delete(a.chats, tripID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}

func (a *App) closeChats(ctx context.Context) {
	a.mu.Lock()
	conns := make([]*chat.Conn, 0, len(a.chats))
	for id, c := range a.chats {
		conns = append(conns, c)
		delete(a.chats, id)
	}
	a.mu.Unlock()

	for _, c := range conns {
		if err := c.Shutdown(ctx); err != nil {
			a.logger.Warn("closing chat", "trip_id", c.TripID(), "error", err)
		}
	}
}

// Name implements the shutdown component contract.
func (a *App) Name() string { return "travelbuddy" }

// Shutdown closes chat connections, the notification broker and the session store.
func (a *App) Shutdown(ctx context.Context) error {
	a.closeChats(ctx)
	a.Notifications.Close()
	return a.Close()
}

// Close releases the session store.
func (a *App) Close() error {
	return a.Session.Close()
}
