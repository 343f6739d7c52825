// Package devserver is an in-memory travel-buddy backend for local
// development and end-to-end tests. It speaks the same REST and WebSocket
// protocol as the production API and enforces the same trip rules.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/pkg/config"
	"github.com/narvanalabs/travel-buddy/web/health"
)

// Server is the dev backend's HTTP and WebSocket server.
type Server struct {
	cfg        config.DevServerConfig
	store      *Store
	tokens     *TokenIssuer
	hub        *hub
	logger     *slog.Logger
	now        func() time.Time
	router     chi.Router
	health     *health.Checker

	mu         sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock sets the time source used for trip rules and token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a server with an empty store.
func NewServer(cfg config.DevServerConfig, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.store = NewStore(s.now)
	s.tokens = NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)
	s.tokens.now = s.now
	s.hub = newHub(s.logger)
	s.health = s.newHealthChecker()
	s.setupRouter()
	return s
}

// newHealthChecker reports an empty store as degraded so an unseeded server
// is easy to spot.
func (s *Server) newHealthChecker() *health.Checker {
	c := health.NewChecker()
	c.Register("store", func(context.Context) health.ComponentStatus {
		users, trips := s.store.Counts()
		status := health.StatusHealthy
		if users == 0 {
			status = health.StatusDegraded
		}
		return health.ComponentStatus{
			Status:  status,
			Message: fmt.Sprintf("%d users, %d trips", users, trips),
		}
	})
	c.Register("chat", func(context.Context) health.ComponentStatus {
		return health.ComponentStatus{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d connections", s.hub.total()),
		}
	})
	return c
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/health", s.health.Handler())

	r.Get("/ws/chat/{tripID}/", s.serveChat)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Post("/login/", s.login)
		r.Post("/token/refresh/", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/profile/", s.profile)
			r.Get("/check-subscription/", s.checkSubscription)

			r.Get("/my-trips/", s.myTrips)
			r.Post("/check-trip-dates/", s.checkTripDates)
			r.Post("/save-trip/", s.saveTrip)
			r.Post("/compatible-trips/", s.compatibleTrips)
			r.Post("/join-trip/{tripID}/", s.membership("Successfully joined the trip", s.joinTrip))

			r.Route("/trip/{tripID}", func(r chi.Router) {
				r.Get("/", s.getTrip)
				r.Post("/leave/", s.membership("You have left the trip", s.leaveTrip))
				r.Post("/cancel/", s.membership("Trip cancelled successfully", s.cancelTrip))
				r.Post("/remove-member/{memberID}/", s.membership("Member removed successfully", s.removeMember))
				r.Get("/chat/", s.chatHistory)
				r.Post("/chat/", s.postChatMessage)
			})

			r.Get("/trip-reviews/", s.listReviews)
			r.Post("/trip-reviews/", s.submitReview)

			r.Get("/notifications/", s.listNotifications(models.StreamTrip))
			r.Post("/notifications/", s.updateNotifications(models.StreamTrip))
			r.Get("/notifications/unread-count/", s.unreadCount(models.StreamTrip))
			r.Get("/chat-notifications/", s.listNotifications(models.StreamChat))
			r.Post("/chat-notifications/", s.updateNotifications(models.StreamChat))
			r.Get("/chat-notifications/unread-count/", s.unreadCount(models.StreamChat))
		})
	})

	s.router = r
}

// Handler returns the root handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the backing store for seeding and inspection.
func (s *Server) Store() *Store {
	return s.store
}

// InvalidateAccessTokens expires every access token of a user so the next
// request gets a 401 and the client has to refresh.
func (s *Server) InvalidateAccessTokens(userID int64) {
	s.store.InvalidateAccessTokens(userID)
}

// RevokeSession invalidates a user's access and refresh tokens.
func (s *Server) RevokeSession(userID int64) {
	s.store.RevokeSessions(userID)
}

// DisconnectAll drops every chat connection without a close handshake.
func (s *Server) DisconnectAll() {
	s.hub.dropAll()
}

// ChatPeers counts the open chat connections of a trip.
func (s *Server) ChatPeers(tripID int64) int {
	return s.hub.peers(tripID)
}

// Start serves on cfg.Addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("starting dev server", "addr", s.cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes chat connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down dev server")
	s.hub.closeAll()

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Name implements the shutdown component contract.
func (s *Server) Name() string { return "devserver" }
