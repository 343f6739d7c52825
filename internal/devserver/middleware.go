package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/travel-buddy/pkg/logger"
)

// UserID extracts the authenticated user id from a request context.
func UserID(ctx context.Context) int64 {
	return logger.UserIDFromContext(ctx)
}

// requestLog returns the server logger annotated with the request and user
// ids carried by r.
func (s *Server) requestLog(r *http.Request) *logger.Logger {
	return (&logger.Logger{Logger: s.logger}).WithContext(r.Context())
}

// requestLogger tags the context with chi's request id and logs every
// request once it completes.
func requestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	base := &logger.Logger{Logger: l}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			if id := middleware.GetReqID(r.Context()); id != "" {
				r = r.WithContext(logger.ContextWithRequestID(r.Context(), id))
			}

			defer func() {
				base.WithContext(r.Context()).Debug("request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// recovery turns a handler panic into a 500 response.
func recovery(l *slog.Logger) func(http.Handler) http.Handler {
	base := &logger.Logger{Logger: l}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					base.WithContext(r.Context()).Error("panic recovered",
						"error", rec,
						"stack_trace", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)
					writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// authenticate validates the bearer access token against the issuer and the
// user's current token version.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		userID, err := s.validateAccess(token)
		if err != nil {
			s.requestLog(r).WithError(err).Debug("access token rejected")
			writeError(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}

		ctx := logger.ContextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) validateAccess(token string) (int64, error) {
	claims, err := s.tokens.Validate(token, TokenTypeAccess)
	if err != nil {
		return 0, err
	}
	access, _, ok := s.store.TokenVersions(claims.UserID)
	if !ok || access != claims.Version {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
