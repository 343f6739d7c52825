package eligibility

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
)

func date(s string) models.Date { return models.MustParseDate(s) }

func datePtr(s string) *models.Date {
	d := date(s)
	return &d
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestValidateDateSelection_CreationLeadTime(t *testing.T) {
	today := date("2024-06-05")

	assert.Equal(t, VerdictTooSoon, ValidateDateSelection(datePtr("2024-06-09"), datePtr("2024-06-12"), today))
	assert.Equal(t, VerdictValid, ValidateDateSelection(datePtr("2024-06-10"), datePtr("2024-06-12"), today))
	assert.Equal(t, VerdictValid, ValidateDateSelection(datePtr("2024-06-10"), datePtr("2024-06-10"), today))
}

func TestValidateDateSelection_Incomplete(t *testing.T) {
	today := date("2024-06-05")

	assert.Equal(t, VerdictIncomplete, ValidateDateSelection(nil, datePtr("2024-06-12"), today))
	assert.Equal(t, VerdictIncomplete, ValidateDateSelection(datePtr("2024-06-12"), nil, today))
	assert.Equal(t, VerdictIncomplete, ValidateDateSelection(&models.Date{}, datePtr("2024-06-12"), today))
}

func TestValidateDateSelection_EndBeforeStart(t *testing.T) {
	v := ValidateDateSelection(datePtr("2024-07-10"), datePtr("2024-07-09"), date("2024-06-05"))
	assert.Equal(t, VerdictInvalidRange, v)
	assert.True(t, errors.Is(v.Err(), apperrors.ErrInvalidRange))
}

func TestVerdictErr(t *testing.T) {
	assert.NoError(t, VerdictValid.Err())
	assert.True(t, errors.Is(VerdictTooSoon.Err(), apperrors.ErrTooSoon))
	assert.True(t, errors.Is(VerdictIncomplete.Err(), apperrors.ErrIncomplete))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(VerdictTooSoon.Err()))
}

func TestDaysUntil_RoundsPartialDaysUp(t *testing.T) {
	start := date("2024-06-08")

	assert.Equal(t, 3, DaysUntil(start, at("2024-06-05T00:00:00Z")))
	assert.Equal(t, 3, DaysUntil(start, at("2024-06-05T14:24:00Z")))
	assert.Equal(t, 2, DaysUntil(start, at("2024-06-06T00:00:00Z")))
	assert.Equal(t, 0, DaysUntil(start, at("2024-06-08T00:00:00Z")))
	assert.Equal(t, 0, DaysUntil(start, at("2024-06-08T10:00:00Z")))
	assert.Equal(t, -1, DaysUntil(start, at("2024-06-09T00:00:00Z")))
}

func TestCanModifyTrip_Cutoff(t *testing.T) {
	trip := &models.Trip{StartDate: date("2024-06-08"), EndDate: date("2024-06-12"), Status: models.TripStatusUpcoming}

	assert.False(t, CanModifyTrip(trip, at("2024-06-06T00:00:00Z")))
	assert.True(t, CanModifyTrip(trip, at("2024-06-05T00:00:00Z")))
	assert.True(t, CanModifyTrip(trip, at("2024-06-05T20:00:00Z")))

	trip.Status = models.TripStatusCancelled
	assert.False(t, CanModifyTrip(trip, at("2024-06-01T00:00:00Z")))
	assert.False(t, CanModifyTrip(nil, at("2024-06-01T00:00:00Z")))
}

func TestCanReview_OverridesStaleServerLabel(t *testing.T) {
	trip := &models.Trip{
		StartDate: date("2024-06-01"),
		EndDate:   date("2024-06-04"),
		Status:    models.TripStatusOngoing,
	}

	assert.True(t, CanReview(trip, date("2024-06-05")))
	assert.Equal(t, models.TripStatusOngoing, trip.Status)

	assert.False(t, CanReview(trip, date("2024-06-04")))

	trip.Status = models.TripStatusCancelled
	assert.False(t, CanReview(trip, date("2024-07-01")))
}

func TestEffectiveStatus(t *testing.T) {
	trip := &models.Trip{StartDate: date("2024-06-10"), EndDate: date("2024-06-12"), Status: models.TripStatusUpcoming}

	assert.Equal(t, models.TripStatusUpcoming, EffectiveStatus(trip, date("2024-06-09")))
	assert.Equal(t, models.TripStatusOngoing, EffectiveStatus(trip, date("2024-06-10")))
	assert.Equal(t, models.TripStatusOngoing, EffectiveStatus(trip, date("2024-06-12")))
	assert.Equal(t, models.TripStatusCompleted, EffectiveStatus(trip, date("2024-06-13")))
}

func genOffset(lo, hi int) gopter.Gen { return gen.IntRange(lo, hi) }

// **Feature: trip-eligibility, Property 1: Creation Lead Time Threshold**
// For any today and any start offset, a complete selection is TooSoon exactly
// when the start is fewer than 5 days after today.
func TestCreationLeadTimeThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := date("2024-01-01")

	properties.Property("TooSoon iff start < today+5", prop.ForAll(
		func(todayOffset, startOffset, length int) bool {
			today := base.AddDays(todayOffset)
			start := today.AddDays(startOffset)
			end := start.AddDays(length)

			v := ValidateDateSelection(&start, &end, today)
			if startOffset < CreationLeadDays {
				return v == VerdictTooSoon
			}
			return v == VerdictValid
		},
		genOffset(0, 700),
		genOffset(-30, 60),
		genOffset(0, 30),
	))

	properties.TestingRun(t)
}

// **Feature: trip-eligibility, Property 2: Cancellation Is Sticky**
// For any dates and any clock, a cancelled trip can never be modified or
// reviewed, and its effective status stays cancelled.
func TestCancellationIsSticky(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := date("2024-01-01")

	properties.Property("cancelled trips admit no modification or review", prop.ForAll(
		func(startOffset, length, nowOffset int) bool {
			trip := &models.Trip{
				StartDate: base.AddDays(startOffset),
				EndDate:   base.AddDays(startOffset + length),
				Status:    models.TripStatusCancelled,
			}
			today := base.AddDays(nowOffset)
			now := today.Time().Add(7 * time.Hour)

			return !CanModifyTrip(trip, now) &&
				!CanReview(trip, today) &&
				EffectiveStatus(trip, today) == models.TripStatusCancelled &&
				len(AvailableActions(trip, 1, now)) == 0
		},
		genOffset(0, 365),
		genOffset(0, 30),
		genOffset(0, 500),
	))

	properties.TestingRun(t)
}

// **Feature: trip-eligibility, Property 3: Modification Cutoff**
// For any non-cancelled trip, modification is allowed exactly when at least 3
// (rounded-up) days remain before the start.
func TestModificationCutoff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	start := date("2024-06-20")

	properties.Property("CanModifyTrip iff DaysUntil >= 3", prop.ForAll(
		func(minutesBefore int) bool {
			trip := &models.Trip{StartDate: start, EndDate: start.AddDays(3), Status: models.TripStatusUpcoming}
			now := start.Time().Add(-time.Duration(minutesBefore) * time.Minute)
			threshold := 2*24*60 + 1
			return CanModifyTrip(trip, now) == (minutesBefore >= threshold)
		},
		gen.IntRange(0, 10*24*60),
	))

	properties.TestingRun(t)
}

// **Feature: trip-eligibility, Property 4: Review Follows Dates, Not Labels**
// For any server label other than cancelled, review eligibility depends only
// on whether the end date is strictly before today.
func TestReviewFollowsDates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := date("2024-01-01")

	properties.Property("CanReview iff end < today", prop.ForAll(
		func(label models.TripStatus, endOffset, todayOffset int) bool {
			trip := &models.Trip{
				StartDate: base.AddDays(endOffset - 2),
				EndDate:   base.AddDays(endOffset),
				Status:    label,
			}
			today := base.AddDays(todayOffset)
			return CanReview(trip, today) == trip.EndDate.Before(today)
		},
		gen.OneConstOf(models.TripStatusUpcoming, models.TripStatusOngoing, models.TripStatusCompleted),
		genOffset(0, 100),
		genOffset(0, 100),
	))

	properties.TestingRun(t)
}
