// Package membership coordinates joining, leaving, cancelling and member
// removal for trips, keeping the cached trip list consistent with the server.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/pkg/logger"
	"github.com/narvanalabs/travel-buddy/web/api"
)

// TripService is the subset of the backend API the coordinator needs.
type TripService interface {
	MyTrips(ctx context.Context) ([]*models.Trip, error)
	GetTrip(ctx context.Context, tripID int64) (*models.Trip, error)
	JoinTrip(ctx context.Context, tripID int64) (*api.MessageResponse, error)
	LeaveTrip(ctx context.Context, tripID int64) (*api.MessageResponse, error)
	CancelTrip(ctx context.Context, tripID int64) (*api.MessageResponse, error)
	RemoveMember(ctx context.Context, tripID, memberID int64) (*api.MessageResponse, error)
}

// Identity reports the signed-in user.
type Identity interface {
	UserID() int64
}

// Op names a membership operation.
type Op string

const (
	OpJoin         Op = "join"
	OpLeave        Op = "leave"
	OpCancel       Op = "cancel"
	OpRemoveMember Op = "remove_member"
)

// Outcome describes how a completed operation affected local state.
type Outcome string

const (
	// OutcomeApplied means the server acknowledged the transition and it was applied locally.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoOp means the server reported the target state already held.
	OutcomeNoOp Outcome = "noop"
	// OutcomeDiscarded means the caller went away before the answer arrived.
	OutcomeDiscarded Outcome = "discarded"
)

// Result is the typed result of a membership operation.
type Result struct {
	Op       Op
	TripID   int64
	MemberID int64
	Outcome  Outcome
	Message  string
}

// Coordinator runs membership operations against the server and reconciles
// the trip cache with each acknowledged transition.
type Coordinator struct {
	service  TripService
	identity Identity
	cache    *api.TripCache
	logger   *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[int64]Op
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = &logger.Logger{Logger: l}
		}
	}
}

// WithClock overrides the time source used for date rules.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithCache shares a trip cache with other components.
func WithCache(cache *api.TripCache) Option {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(service TripService, identity Identity, opts ...Option) *Coordinator {
	c := &Coordinator{
		service:  service,
		identity: identity,
		logger:   &logger.Logger{Logger: slog.Default()},
		now:      time.Now,
		inFlight: make(map[int64]Op),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = api.NewTripCache(api.DefaultTripCacheTTL)
	}
	c.logger = c.logger.WithComponent("membership")
	return c
}

// Cache returns the trip cache the coordinator reconciles.
func (c *Coordinator) Cache() *api.TripCache {
	return c.cache
}

// Trips returns the user's trips matching the filter.
func (c *Coordinator) Trips(ctx context.Context, filter eligibility.TripFilter) ([]*models.Trip, error) {
	if !filter.IsValid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unknown trip filter %q", filter)
	}
	trips, err := c.cache.Get(ctx, c.service)
	if err != nil {
		return nil, err
	}
	return eligibility.Filter(trips, filter), nil
}

// Refresh discards the cached trip list and fetches it again.
func (c *Coordinator) Refresh(ctx context.Context) ([]*models.Trip, error) {
	return c.cache.Refresh(ctx, c.service)
}

// Trip returns a trip from the cache, falling back to the server.
func (c *Coordinator) Trip(ctx context.Context, tripID int64) (*models.Trip, error) {
	if t, ok := c.cache.Find(tripID); ok {
		return t, nil
	}
	return c.service.GetTrip(ctx, tripID)
}

// Actions returns what the signed-in user may do with a trip right now.
func (c *Coordinator) Actions(ctx context.Context, tripID int64) ([]eligibility.TripAction, error) {
	trip, err := c.Trip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return eligibility.AvailableActions(trip, c.identity.UserID(), c.now()), nil
}

// InFlight reports whether an operation for the trip is awaiting the server.
func (c *Coordinator) InFlight(tripID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[tripID]
	return ok
}

func (c *Coordinator) begin(tripID int64, op Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if running, ok := c.inFlight[tripID]; ok {
		return apperrors.ErrInFlight.WithMessage(fmt.Sprintf("%s already in progress for trip %d", running, tripID))
	}
	c.inFlight[tripID] = op
	return nil
}

func (c *Coordinator) end(tripID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, tripID)
}

// Join adds the signed-in user to a trip.
func (c *Coordinator) Join(ctx context.Context, tripID int64) (*Result, error) {
	if err := c.begin(tripID, OpJoin); err != nil {
		return nil, err
	}
	defer c.end(tripID)

	userID := c.identity.UserID()
	trip, err := c.Trip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	switch {
	case trip.IsCancelled():
		return nil, apperrors.ErrAlreadyCancelled
	case trip.IsParticipant(userID):
		return nil, apperrors.ErrAlreadyMember
	case trip.IsFull():
		return nil, apperrors.ErrFull
	}

	mine, err := c.cache.Get(ctx, c.service)
	if err != nil {
		return nil, fmt.Errorf("loading trips for overlap check: %w", err)
	}
	for _, other := range mine {
		if other.ID == trip.ID || other.IsCancelled() {
			continue
		}
		if other.Overlaps(trip) {
			return nil, apperrors.ErrConflict.WithMessage(
				fmt.Sprintf("you already have a trip to %s during these dates", other.Name()))
		}
	}

	joined := trip.Clone()
	joined.Members = append(joined.Members, models.UserRef{ID: userID})

	return c.execute(ctx, OpJoin, tripID, 0,
		func(ctx context.Context) (*api.MessageResponse, error) { return c.service.JoinTrip(ctx, tripID) },
		func(trips []*models.Trip) []*models.Trip {
			return append(withoutTrip(trips, tripID), joined)
		},
	)
}

// Leave removes the signed-in user from a trip they joined.
func (c *Coordinator) Leave(ctx context.Context, tripID int64) (*Result, error) {
	if err := c.begin(tripID, OpLeave); err != nil {
		return nil, err
	}
	defer c.end(tripID)

	userID := c.identity.UserID()
	trip, err := c.Trip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	switch {
	case trip.IsCancelled():
		return nil, apperrors.ErrAlreadyCancelled
	case trip.IsCreator(userID):
		return nil, apperrors.ErrNotAuthorized.WithMessage("the creator cannot leave a trip, cancel it instead")
	case !trip.IsMember(userID):
		return &Result{Op: OpLeave, TripID: tripID, Outcome: OutcomeNoOp, Message: "not a member of this trip"}, nil
	case !eligibility.CanModifyTrip(trip, c.now()):
		return nil, apperrors.ErrTooLate
	}

	drop := func(trips []*models.Trip) []*models.Trip { return withoutTrip(trips, tripID) }
	return c.execute(ctx, OpLeave, tripID, 0,
		func(ctx context.Context) (*api.MessageResponse, error) { return c.service.LeaveTrip(ctx, tripID) },
		drop,
	)
}

// Cancel cancels a trip the signed-in user created. Cancellation is terminal.
func (c *Coordinator) Cancel(ctx context.Context, tripID int64) (*Result, error) {
	if err := c.begin(tripID, OpCancel); err != nil {
		return nil, err
	}
	defer c.end(tripID)

	userID := c.identity.UserID()
	trip, err := c.Trip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	switch {
	case trip.IsCancelled():
		return nil, apperrors.ErrAlreadyCancelled
	case !trip.IsCreator(userID):
		return nil, apperrors.ErrNotAuthorized.WithMessage("only the creator can cancel a trip")
	case !eligibility.CanModifyTrip(trip, c.now()):
		return nil, apperrors.ErrTooLate
	}

	cancelledAt := c.now()
	return c.execute(ctx, OpCancel, tripID, 0,
		func(ctx context.Context) (*api.MessageResponse, error) { return c.service.CancelTrip(ctx, tripID) },
		func(trips []*models.Trip) []*models.Trip {
			for _, t := range trips {
				if t.ID == tripID {
					t.Status = models.TripStatusCancelled
					t.CancelledByInfo = &models.CancellationInfo{IsCreator: true, CancelledAt: cancelledAt}
				}
			}
			return trips
		},
	)
}

// RemoveMember removes another member from a trip the signed-in user created.
func (c *Coordinator) RemoveMember(ctx context.Context, tripID, memberID int64) (*Result, error) {
	if err := c.begin(tripID, OpRemoveMember); err != nil {
		return nil, err
	}
	defer c.end(tripID)

	userID := c.identity.UserID()
	trip, err := c.Trip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	switch {
	case trip.IsCancelled():
		return nil, apperrors.ErrAlreadyCancelled
	case !trip.IsCreator(userID):
		return nil, apperrors.ErrNotAuthorized.WithMessage("only the creator can remove members")
	case memberID == userID:
		return nil, apperrors.New(apperrors.CodeInvalidInput, "the creator cannot be removed from their own trip")
	case !trip.IsMember(memberID):
		return &Result{Op: OpRemoveMember, TripID: tripID, MemberID: memberID, Outcome: OutcomeNoOp,
			Message: "member is no longer part of this trip"}, nil
	case !eligibility.CanModifyTrip(trip, c.now()):
		return nil, apperrors.ErrTooLate
	}

	return c.execute(ctx, OpRemoveMember, tripID, memberID,
		func(ctx context.Context) (*api.MessageResponse, error) {
			return c.service.RemoveMember(ctx, tripID, memberID)
		},
		func(trips []*models.Trip) []*models.Trip {
			for _, t := range trips {
				if t.ID == tripID {
					t.RemoveMember(memberID)
				}
			}
			return trips
		},
	)
}

// execute awaits the server and reconciles the cache with its answer.
func (c *Coordinator) execute(
	ctx context.Context,
	op Op,
	tripID, memberID int64,
	call func(context.Context) (*api.MessageResponse, error),
	apply func([]*models.Trip) []*models.Trip,
) (*Result, error) {
	log := c.logger.WithUserID(c.identity.UserID()).WithTripID(tripID)
	log.Logger = log.With("op", op)
	if memberID != 0 {
		log.Logger = log.With("member_id", memberID)
	}

	resp, err := call(ctx)

	if ctx.Err() != nil {
		c.cache.Invalidate()
		log.Debug("response discarded, caller gone")
		return &Result{Op: op, TripID: tripID, MemberID: memberID, Outcome: OutcomeDiscarded}, ctx.Err()
	}

	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyRemoved) && (op == OpLeave || op == OpRemoveMember) {
			c.cache.Apply(apply)
			log.Info("target already removed on server")
			return &Result{Op: op, TripID: tripID, MemberID: memberID, Outcome: OutcomeNoOp, Message: messageOf(err)}, nil
		}
		if apperrors.Ambiguous(err) {
			c.cache.Invalidate()
			log.WithError(err).Warn("outcome unknown, trip list invalidated")
		}
		return nil, err
	}

	c.cache.Apply(apply)

	result := &Result{Op: op, TripID: tripID, MemberID: memberID, Outcome: OutcomeApplied}
	if resp != nil {
		result.Message = resp.Message
	}
	log.Info("membership change applied")
	return result, nil
}

func withoutTrip(trips []*models.Trip, tripID int64) []*models.Trip {
	out := trips[:0]
	for _, t := range trips {
		if t.ID != tripID {
			out = append(out, t)
		}
	}
	return out
}

func messageOf(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
