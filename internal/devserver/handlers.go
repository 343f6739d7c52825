package devserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/pkg/logger"
	"github.com/narvanalabs/travel-buddy/web/api"
)

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UsernameOrEmail == "" || req.Password == "" {
		writeRejection(w, &httpError{status: http.StatusBadRequest, fields: map[string][]string{
			"usernameOrEmail": {"This field is required."},
			"password":        {"This field is required."},
		}})
		return
	}

	user, err := s.store.Authenticate(req.UsernameOrEmail, req.Password)
	if err != nil {
		s.requestLog(r).WithError(err).Debug("login rejected", "user", req.UsernameOrEmail)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tokens, err := s.issuePair(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, api.LoginResponse{Tokens: tokens, User: *user})
}

func (s *Server) issuePair(userID int64) (models.Tokens, error) {
	access, refresh, _ := s.store.TokenVersions(userID)
	accessToken, err := s.tokens.Issue(userID, TokenTypeAccess, access)
	if err != nil {
		return models.Tokens{}, err
	}
	refreshToken, err := s.tokens.Issue(userID, TokenTypeRefresh, refresh)
	if err != nil {
		return models.Tokens{}, err
	}
	return models.Tokens{Access: accessToken, Refresh: refreshToken}, nil
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims, err := s.tokens.Validate(req.Refresh, TokenTypeRefresh)
	if err == nil {
		if _, version, ok := s.store.TokenVersions(claims.UserID); !ok || version != claims.Version {
			err = ErrInvalidToken
		}
	}
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}

	access, _, _ := s.store.TokenVersions(claims.UserID)
	token, err := s.tokens.Issue(claims.UserID, TokenTypeAccess, access)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, api.RefreshResponse{Access: token})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.User(UserID(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) checkSubscription(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Subscription(UserID(r.Context())))
}

func (s *Server) myTrips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.MyTrips(UserID(r.Context())))
}

func (s *Server) getTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	trip, herr := s.store.Trip(tripID)
	if herr != nil {
		writeRejection(w, herr)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (s *Server) checkTripDates(w http.ResponseWriter, r *http.Request) {
	var req api.CheckTripDatesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		writeError(w, http.StatusBadRequest, "Start date and end date are required")
		return
	}
	conflict := s.store.HasConflict(UserID(r.Context()), req.StartDate, req.EndDate)
	writeJSON(w, http.StatusOK, api.CheckTripDatesResponse{HasConflict: conflict})
}

func (s *Server) saveTrip(w http.ResponseWriter, r *http.Request) {
	var plan api.TripPlan
	if !decodeJSON(w, r, &plan) {
		return
	}
	tripID, herr := s.store.SaveTrip(UserID(r.Context()), plan)
	if herr != nil {
		writeRejection(w, herr)
		return
	}
	writeJSON(w, http.StatusCreated, api.SaveTripResponse{TripID: tripID, Message: "Trip saved successfully"})
}

func (s *Server) compatibleTrips(w http.ResponseWriter, r *http.Request) {
	var plan api.TripPlan
	if !decodeJSON(w, r, &plan) {
		return
	}
	writeJSON(w, http.StatusOK, s.store.CompatibleTrips(UserID(r.Context()), plan))
}

// membership wraps the join, leave, cancel and remove-member endpoints.
func (s *Server) membership(success string, apply func(userID, tripID int64, r *http.Request) *httpError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tripID, ok := pathID(r, "tripID")
		if !ok {
			writeError(w, http.StatusNotFound, "Trip not found")
			return
		}
		if herr := apply(UserID(r.Context()), tripID, r); herr != nil {
			ctx := logger.ContextWithTripID(r.Context(), tripID)
			s.requestLog(r.WithContext(ctx)).Debug("membership change rejected", "status", herr.status, "reason", herr.message)
			writeRejection(w, herr)
			return
		}
		writeJSON(w, http.StatusOK, api.MessageResponse{Message: success})
	}
}

func (s *Server) joinTrip(userID, tripID int64, _ *http.Request) *httpError {
	return s.store.Join(userID, tripID)
}

func (s *Server) leaveTrip(userID, tripID int64, _ *http.Request) *httpError {
	return s.store.Leave(userID, tripID)
}

func (s *Server) cancelTrip(userID, tripID int64, _ *http.Request) *httpError {
	return s.store.Cancel(userID, tripID)
}

func (s *Server) removeMember(userID, tripID int64, r *http.Request) *httpError {
	memberID, ok := pathID(r, "memberID")
	if !ok {
		return notFound("User not found")
	}
	return s.store.RemoveMember(userID, tripID, memberID)
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Reviews(UserID(r.Context())))
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	var req api.ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	review, created, herr := s.store.SubmitReview(UserID(r.Context()), req)
	if herr != nil {
		writeRejection(w, herr)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, review)
}

func (s *Server) listNotifications(stream models.NotificationStream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := UserID(r.Context())
		if stream == models.StreamChat {
			writeJSON(w, http.StatusOK, s.store.ChatNotifications(userID))
			return
		}
		writeJSON(w, http.StatusOK, s.store.TripNotifications(userID))
	}
}

func (s *Server) updateNotifications(stream models.NotificationStream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update api.NotificationUpdate
		if !decodeJSON(w, r, &update) {
			return
		}
		if !update.ClearAll && len(update.NotificationIDs) == 0 {
			writeError(w, http.StatusBadRequest, "notification_ids or clear_all is required")
			return
		}
		s.store.UpdateNotifications(UserID(r.Context()), stream, update)
		writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Notifications updated"})
	}
}

func (s *Server) unreadCount(stream models.NotificationStream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := s.store.UnreadCount(UserID(r.Context()), stream)
		writeJSON(w, http.StatusOK, api.UnreadCountResponse{UnreadCount: count})
	}
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	if herr := s.store.CanChat(UserID(r.Context()), tripID); herr != nil {
		writeRejection(w, herr)
		return
	}
	writeJSON(w, http.StatusOK, s.store.ChatHistory(tripID))
}

func (s *Server) postChatMessage(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	var req models.OutgoingChatMessage
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, herr := s.store.PostMessage(UserID(r.Context()), tripID, req.Message)
	if herr != nil {
		writeRejection(w, herr)
		return
	}
	s.hub.broadcast(tripID, msg)
	writeJSON(w, http.StatusCreated, msg)
}
