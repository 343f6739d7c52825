// Package reviews keeps the signed-in user's trip reviews, one per trip.
package reviews

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/web/api"
)

// Service is the backend surface used by the ledger.
type Service interface {
	ListReviews(ctx context.Context) ([]*models.Review, error)
	SubmitReview(ctx context.Context, req api.ReviewRequest) (*models.Review, error)
}

// Ledger maps trips to the user's review of them.
type Ledger struct {
	service Service
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	byTrip   map[int64]*models.Review
	inFlight map[int64]struct{}
	loaded   bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used for eligibility.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates an empty Ledger.
func NewLedger(service Service, opts ...Option) *Ledger {
	l := &Ledger{
		service:  service,
		logger:   slog.Default(),
		now:      time.Now,
		byTrip:   make(map[int64]*models.Review),
		inFlight: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "reviews")
	return l
}

// Load replaces the ledger with the server's list.
func (l *Ledger) Load(ctx context.Context) error {
	reviews, err := l.service.ListReviews(ctx)
	if err != nil {
		return err
	}

	byTrip := make(map[int64]*models.Review, len(reviews))
	for _, r := range reviews {
		c := *r
		byTrip[r.TripID] = &c
	}

	l.mu.Lock()
	l.byTrip = byTrip
	l.loaded = true
	l.mu.Unlock()

	l.logger.Debug("reviews loaded", "count", len(byTrip))
	return nil
}

// Loaded reports whether Load has succeeded since the last reset.
func (l *Ledger) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Lookup returns the user's review of a trip, if one exists.
func (l *Ledger) Lookup(tripID int64) (*models.Review, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byTrip[tripID]
	if !ok {
		return nil, false
	}
	c := *r
	return &c, true
}

// Reviews returns every review ordered by trip id.
func (l *Ledger) Reviews() []*models.Review {
	l.mu.RLock()
	out := make([]*models.Review, 0, len(l.byTrip))
	for _, r := range l.byTrip {
		c := *r
		out = append(out, &c)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	return out
}

// Submit creates or replaces the review of a completed trip. Comments longer
// than models.MaxCommentLength characters are truncated.
func (l *Ledger) Submit(ctx context.Context, trip *models.Trip, rating int, comment string) (*models.Review, error) {
	if trip == nil {
		return nil, apperrors.ErrNotFound.WithMessage("trip not found")
	}
	if !eligibility.CanReview(trip, models.DateOf(l.now())) {
		return nil, apperrors.ErrNotEligible
	}
	if !models.ValidRating(rating) {
		var fields apperrors.FieldErrors
		fields.Add("rating", "must be between 1 and 5")
		e := *apperrors.ErrInvalidRating
		e.Fields = fields
		return nil, &e
	}

	if err := l.begin(trip.ID); err != nil {
		return nil, err
	}
	defer l.end(trip.ID)

	_, editing := l.Lookup(trip.ID)
	req := api.ReviewRequest{
		TripID:  trip.ID,
		Rating:  rating,
		Comment: models.TruncateComment(comment),
	}

	saved, err := l.service.SubmitReview(ctx, req)
	if err != nil {
		return nil, err
	}

	review := &models.Review{TripID: req.TripID, Rating: req.Rating, Comment: req.Comment}
	if saved != nil {
		review.ID = saved.ID
		review.UserID = saved.UserID
		review.CreatedAt = saved.CreatedAt
		if saved.Comment != "" {
			review.Comment = saved.Comment
		}
	}

	l.mu.Lock()
	l.byTrip[trip.ID] = review
	l.mu.Unlock()

	l.logger.Info("review saved", "trip_id", trip.ID, "rating", rating, "edit", editing)
	c := *review
	return &c, nil
}

// InFlight reports whether a submission for the trip is awaiting the server.
func (l *Ledger) InFlight(tripID int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.inFlight[tripID]
	return ok
}

// Reset empties the ledger.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byTrip = make(map[int64]*models.Review)
	l.loaded = false
}

func (l *Ledger) begin(tripID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.inFlight[tripID]; ok {
		return apperrors.ErrInFlight
	}
	l.inFlight[tripID] = struct{}{}
	return nil
}

func (l *Ledger) end(tripID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, tripID)
}
