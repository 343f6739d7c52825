package eligibility

import (
	"sort"
	"time"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// TripAction represents an action a user can take on a trip.
type TripAction string

const (
	TripActionJoin         TripAction = "join"
	TripActionLeave        TripAction = "leave"
	TripActionCancel       TripAction = "cancel"
	TripActionRemoveMember TripAction = "remove_member"
	TripActionReview       TripAction = "review"
	TripActionChat         TripAction = "chat"
)

// AvailableActions returns the actions userID may take on the trip at now.
func AvailableActions(trip *models.Trip, userID int64, now time.Time) []TripAction {
	if trip == nil || trip.IsCancelled() {
		return []TripAction{}
	}

	today := models.DateOf(now)
	actions := []TripAction{}

	if !trip.IsParticipant(userID) {
		if !trip.IsFull() && EffectiveStatus(trip, today) == models.TripStatusUpcoming {
			actions = append(actions, TripActionJoin)
		}
		return actions
	}

	actions = append(actions, TripActionChat)

	if CanModifyTrip(trip, now) {
		if trip.IsCreator(userID) {
			actions = append(actions, TripActionCancel)
			if len(trip.Members) > 0 {
				actions = append(actions, TripActionRemoveMember)
			}
		} else {
			actions = append(actions, TripActionLeave)
		}
	}

	if CanReview(trip, today) {
		actions = append(actions, TripActionReview)
	}

	return actions
}

// HasAction returns true if the action is available to userID.
func HasAction(trip *models.Trip, userID int64, now time.Time, action TripAction) bool {
	for _, a := range AvailableActions(trip, userID, now) {
		if a == action {
			return true
		}
	}
	return false
}

// TripFilter selects a subset of the user's trips for listing.
type TripFilter string

const (
	// FilterActive lists every trip that is not cancelled.
	FilterActive    TripFilter = "active"
	FilterUpcoming  TripFilter = "upcoming"
	FilterOngoing   TripFilter = "ongoing"
	FilterCompleted TripFilter = "completed"
	FilterCancelled TripFilter = "cancelled"
)

// IsValid returns true if the filter is known.
func (f TripFilter) IsValid() bool {
	switch f {
	case FilterActive, FilterUpcoming, FilterOngoing, FilterCompleted, FilterCancelled:
		return true
	default:
		return false
	}
}

// Filter returns the trips matching f, in their original order. Cancelled
// trips only ever appear under FilterCancelled.
func Filter(trips []*models.Trip, f TripFilter) []*models.Trip {
	out := make([]*models.Trip, 0, len(trips))
	for _, trip := range trips {
		switch f {
		case FilterCancelled:
			if trip.IsCancelled() {
				out = append(out, trip)
			}
		case FilterActive, "":
			if !trip.IsCancelled() {
				out = append(out, trip)
			}
		default:
			if !trip.IsCancelled() && trip.Status == models.TripStatus(f) {
				out = append(out, trip)
			}
		}
	}
	return out
}

// FreeCompatibleTripLimit is how many compatible trips a user without a subscription sees.
const FreeCompatibleTripLimit = 3

// VisibleCompatibleTrips orders trips by compatibility, best first, and caps
// the list for users without a subscription.
func VisibleCompatibleTrips(trips []*models.Trip, subscribed bool) []*models.Trip {
	sorted := make([]*models.Trip, len(trips))
	copy(sorted, trips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CompatibilityScore > sorted[j].CompatibilityScore
	})
	if !subscribed && len(sorted) > FreeCompatibleTripLimit {
		sorted = sorted[:FreeCompatibleTripLimit]
	}
	return sorted
}
