// Package planner drives trip creation: date selection, the server overlap
// check, saving, and the compatible-trip search.
package planner

import (
	"context"
	"log/slog"
	"time"

	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/web/api"
)

// Service is the backend surface used by the planner.
type Service interface {
	CheckTripDates(ctx context.Context, req api.CheckTripDatesRequest) (*api.CheckTripDatesResponse, error)
	SaveTrip(ctx context.Context, plan api.TripPlan) (*api.SaveTripResponse, error)
	CompatibleTrips(ctx context.Context, plan api.TripPlan) ([]*models.Trip, error)
	CheckSubscription(ctx context.Context) (*models.Subscription, error)
}

// Invalidator drops cached trip lists after a trip is created.
type Invalidator interface {
	Invalidate()
}

// Draft is a trip being planned. Dates are nil until chosen.
type Draft struct {
	DestinationID int64
	Activities    []int64
	StartDate     *models.Date
	EndDate       *models.Date
	MaxMembers    int
	Description   string
}

func (d Draft) plan() api.TripPlan {
	p := api.TripPlan{
		DestinationID: d.DestinationID,
		Activities:    d.Activities,
		MaxMembers:    d.MaxMembers,
		Description:   d.Description,
	}
	if p.Activities == nil {
		p.Activities = []int64{}
	}
	if d.StartDate != nil {
		p.StartDate = *d.StartDate
	}
	if d.EndDate != nil {
		p.EndDate = *d.EndDate
	}
	return p
}

// Compatible is the result of a compatible-trip search.
type Compatible struct {
	Trips      []*models.Trip
	Total      int
	Subscribed bool
}

// Hidden returns how many matches are held back by the free tier.
func (c *Compatible) Hidden() int {
	return c.Total - len(c.Trips)
}

// Planner validates drafts locally before any request reaches the server.
type Planner struct {
	service Service
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// NewPlanner creates a Planner. cache may be nil.
func NewPlanner(service Service, cache Invalidator, opts ...Option) *Planner {
	p := &Planner{
		service: service,
		cache:   cache,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "planner")
	return p
}

// ValidateDates runs the local date rules only.
func (p *Planner) ValidateDates(d Draft) error {
	return eligibility.ValidateDateSelection(d.StartDate, d.EndDate, models.DateOf(p.now())).Err()
}

// CheckDates validates the draft's dates locally and then asks the server
// whether they overlap one of the user's trips.
func (p *Planner) CheckDates(ctx context.Context, d Draft) error {
	if err := p.ValidateDates(d); err != nil {
		return err
	}
	if d.DestinationID == 0 {
		var fields apperrors.FieldErrors
		fields.Add("destinationId", "required")
		return fields.ToError()
	}

	resp, err := p.service.CheckTripDates(ctx, api.CheckTripDatesRequest{
		StartDate:     *d.StartDate,
		EndDate:       *d.EndDate,
		DestinationID: d.DestinationID,
	})
	if err != nil {
		return err
	}
	if resp.HasConflict {
		return apperrors.ErrDateOverlap
	}
	return nil
}

// Create saves the draft as a new trip owned by the user and returns its id.
func (p *Planner) Create(ctx context.Context, d Draft) (int64, error) {
	var fields apperrors.FieldErrors
	if d.MaxMembers < 1 {
		fields.Add("maxMembers", "must be at least 1")
	}
	if fields.HasErrors() {
		return 0, fields.ToError()
	}

	if err := p.CheckDates(ctx, d); err != nil {
		return 0, err
	}

	resp, err := p.service.SaveTrip(ctx, d.plan())
	if err != nil {
		if apperrors.Ambiguous(err) && p.cache != nil {
			p.cache.Invalidate()
		}
		return 0, err
	}
	if p.cache != nil {
		p.cache.Invalidate()
	}

	p.logger.Info("trip created",
		"trip_id", resp.TripID,
		"destination_id", d.DestinationID,
		"start_date", d.StartDate.String(),
		"end_date", d.EndDate.String(),
	)
	return resp.TripID, nil
}

// Compatible searches other users' trips matching the draft. Without a
// subscription only the best few matches are returned.
func (p *Planner) Compatible(ctx context.Context, d Draft) (*Compatible, error) {
	if err := p.ValidateDates(d); err != nil {
		return nil, err
	}

	trips, err := p.service.CompatibleTrips(ctx, d.plan())
	if err != nil {
		return nil, err
	}

	subscribed := false
	sub, err := p.service.CheckSubscription(ctx)
	switch {
	case err == nil:
		subscribed = sub.HasSubscription
	case apperrors.IsKind(err, apperrors.KindTransport):
		return nil, err
	default:
		p.logger.Warn("subscription check failed, using free tier", "error", err)
	}

	return &Compatible{
		Trips:      eligibility.VisibleCompatibleTrips(trips, subscribed),
		Total:      len(trips),
		Subscribed: subscribed,
	}, nil
}
