package planner

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/web/api"
)

var testNow = time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

type mockService struct {
	conflict     bool
	saveErr      error
	compatible   []*models.Trip
	subscription *models.Subscription
	subErr       error

	checks []api.CheckTripDatesRequest
	saves  []api.TripPlan
}

func (m *mockService) CheckTripDates(ctx context.Context, req api.CheckTripDatesRequest) (*api.CheckTripDatesResponse, error) {
	m.checks = append(m.checks, req)
	return &api.CheckTripDatesResponse{HasConflict: m.conflict}, nil
}

func (m *mockService) SaveTrip(ctx context.Context, plan api.TripPlan) (*api.SaveTripResponse, error) {
	m.saves = append(m.saves, plan)
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	return &api.SaveTripResponse{TripID: 77}, nil
}

func (m *mockService) CompatibleTrips(ctx context.Context, plan api.TripPlan) ([]*models.Trip, error) {
	return m.compatible, nil
}

func (m *mockService) CheckSubscription(ctx context.Context) (*models.Subscription, error) {
	if m.subErr != nil {
		return nil, m.subErr
	}
	if m.subscription == nil {
		return &models.Subscription{}, nil
	}
	return m.subscription, nil
}

type countingCache struct{ invalidated int }

func (c *countingCache) Invalidate() { c.invalidated++ }

func day(offset int) *models.Date {
	d := models.DateOf(testNow).AddDays(offset)
	return &d
}

func draft(start, end int) Draft {
	return Draft{
		DestinationID: 3,
		Activities:    []int64{1, 4},
		StartDate:     day(start),
		EndDate:       day(end),
		MaxMembers:    4,
	}
}

func newPlanner(svc *mockService, cache Invalidator) *Planner {
	return NewPlanner(svc, cache, WithClock(func() time.Time { return testNow }))
}

func TestCheckDates_LocalRulesSkipNetwork(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"missing end", Draft{DestinationID: 3, StartDate: day(6)}, apperrors.ErrIncomplete},
		{"too soon", draft(4, 6), apperrors.ErrTooSoon},
		{"reversed", draft(8, 6), apperrors.ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			err := newPlanner(svc, nil).CheckDates(context.Background(), tt.draft)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, svc.checks)
		})
	}
}

func TestCheckDates_BoundaryAccepted(t *testing.T) {
	svc := &mockService{}
	err := newPlanner(svc, nil).CheckDates(context.Background(), draft(eligibility.CreationLeadDays, eligibility.CreationLeadDays))
	require.NoError(t, err)
	require.Len(t, svc.checks, 1)
	assert.Equal(t, *day(5), svc.checks[0].StartDate)
}

func TestCheckDates_ServerOverlap(t *testing.T) {
	svc := &mockService{conflict: true}
	err := newPlanner(svc, nil).CheckDates(context.Background(), draft(10, 12))
	assert.ErrorIs(t, err, apperrors.ErrDateOverlap)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCreate(t *testing.T) {
	t.Run("saves and invalidates", func(t *testing.T) {
		svc := &mockService{}
		cache := &countingCache{}
		id, err := newPlanner(svc, cache).Create(context.Background(), draft(10, 14))
		require.NoError(t, err)
		assert.Equal(t, int64(77), id)
		assert.Equal(t, 1, cache.invalidated)
		require.Len(t, svc.saves, 1)
		assert.Equal(t, 4, svc.saves[0].MaxMembers)
	})

	t.Run("requires capacity", func(t *testing.T) {
		svc := &mockService{}
		d := draft(10, 14)
		d.MaxMembers = 0
		_, err := newPlanner(svc, nil).Create(context.Background(), d)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		assert.Empty(t, svc.checks)
	})

	t.Run("overlap blocks save", func(t *testing.T) {
		svc := &mockService{conflict: true}
		_, err := newPlanner(svc, nil).Create(context.Background(), draft(10, 14))
		assert.ErrorIs(t, err, apperrors.ErrDateOverlap)
		assert.Empty(t, svc.saves)
	})

	t.Run("ambiguous failure invalidates", func(t *testing.T) {
		svc := &mockService{saveErr: apperrors.ErrUnavailable}
		cache := &countingCache{}
		_, err := newPlanner(svc, cache).Create(context.Background(), draft(10, 14))
		assert.Error(t, err)
		assert.Equal(t, 1, cache.invalidated)
	})
}

func scored(scores ...float64) []*models.Trip {
	trips := make([]*models.Trip, len(scores))
	for i, s := range scores {
		trips[i] = &models.Trip{ID: int64(i + 1), CompatibilityScore: s}
	}
	return trips
}

func TestCompatible(t *testing.T) {
	t.Run("free tier", func(t *testing.T) {
		svc := &mockService{compatible: scored(10, 90, 40, 70, 20)}
		res, err := newPlanner(svc, nil).Compatible(context.Background(), draft(10, 12))
		require.NoError(t, err)
		require.Len(t, res.Trips, eligibility.FreeCompatibleTripLimit)
		assert.Equal(t, int64(2), res.Trips[0].ID)
		assert.Equal(t, 2, res.Hidden())
		assert.False(t, res.Subscribed)
	})

	t.Run("subscribed sees all", func(t *testing.T) {
		svc := &mockService{
			compatible:   scored(10, 90, 40, 70, 20),
			subscription: &models.Subscription{HasSubscription: true, Plan: "monthly"},
		}
		res, err := newPlanner(svc, nil).Compatible(context.Background(), draft(10, 12))
		require.NoError(t, err)
		assert.Len(t, res.Trips, 5)
		assert.Zero(t, res.Hidden())
	})

	t.Run("subscription lookup rejected falls back to free tier", func(t *testing.T) {
		svc := &mockService{compatible: scored(1, 2, 3, 4), subErr: apperrors.ErrNotFound}
		res, err := newPlanner(svc, nil).Compatible(context.Background(), draft(10, 12))
		require.NoError(t, err)
		assert.Len(t, res.Trips, eligibility.FreeCompatibleTripLimit)
	})
}

// **Feature: trip-planner, Property 1: Lead time gate**
// The server is consulted iff the start date is at least five days out and the range is ordered.
func TestProperty_CheckDatesGate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("server check only for locally valid ranges", prop.ForAll(
		func(start, length int) bool {
			svc := &mockService{}
			err := newPlanner(svc, nil).CheckDates(context.Background(), draft(start, start+length))
			valid := start >= eligibility.CreationLeadDays && length >= 0
			if valid {
				return err == nil && len(svc.checks) == 1
			}
			return err != nil && len(svc.checks) == 0
		},
		gen.IntRange(-10, 30),
		gen.IntRange(-5, 15),
	))

	properties.TestingRun(t)
}
