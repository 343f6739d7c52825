// Package eligibility decides what a user may do with a trip on a given day.
//
// Every function here is pure: callers pass the clock in, and nothing is
// written back to the trip records.
package eligibility

import (
	"math"
	"time"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
)

const (
	// CreationLeadDays is how far ahead of today a new trip must start.
	CreationLeadDays = 5
	// ModificationCutoffDays is the minimum days before departure for cancel, leave and remove-member.
	ModificationCutoffDays = 3
)

// Verdict is the outcome of validating a date selection.
type Verdict string

const (
	VerdictValid        Verdict = "valid"
	VerdictIncomplete   Verdict = "incomplete"
	VerdictTooSoon      Verdict = "too_soon"
	VerdictInvalidRange Verdict = "invalid_range"
)

// Err returns the error for a failing verdict, or nil when valid.
func (v Verdict) Err() error {
	switch v {
	case VerdictValid:
		return nil
	case VerdictIncomplete:
		return apperrors.ErrIncomplete
	case VerdictTooSoon:
		return apperrors.ErrTooSoon
	case VerdictInvalidRange:
		return apperrors.ErrInvalidRange
	default:
		return apperrors.New(apperrors.CodeInvalidInput, "unknown date verdict")
	}
}

// ValidateDateSelection checks a proposed trip date range before any server
// overlap check. A start exactly CreationLeadDays after today is accepted.
func ValidateDateSelection(start, end *models.Date, today models.Date) Verdict {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return VerdictIncomplete
	}
	if start.Before(today.AddDays(CreationLeadDays)) {
		return VerdictTooSoon
	}
	if end.Before(*start) {
		return VerdictInvalidRange
	}
	return VerdictValid
}

// DaysUntil returns the number of days from now until target, rounding
// partial days up.
func DaysUntil(target models.Date, now time.Time) int {
	hours := target.Time().Sub(now).Hours()
	return int(math.Ceil(hours / 24))
}

// CanModifyTrip is the single rule gating cancel, leave and remove-member.
func CanModifyTrip(trip *models.Trip, now time.Time) bool {
	if trip == nil || trip.IsCancelled() {
		return false
	}
	return DaysUntil(trip.StartDate, now) >= ModificationCutoffDays
}

// EffectiveStatus derives a trip's status from its dates. Cancelled is sticky
// and always wins over the dates.
func EffectiveStatus(trip *models.Trip, today models.Date) models.TripStatus {
	switch {
	case trip.IsCancelled():
		return models.TripStatusCancelled
	case today.Before(trip.StartDate):
		return models.TripStatusUpcoming
	case trip.EndDate.Before(today):
		return models.TripStatusCompleted
	default:
		return models.TripStatusOngoing
	}
}

// CanReview reports whether a review may be submitted for the trip. The
// computed status is used even when the server label is stale.
func CanReview(trip *models.Trip, today models.Date) bool {
	if trip == nil || trip.IsCancelled() {
		return false
	}
	return EffectiveStatus(trip, today) == models.TripStatusCompleted
}
