package devserver

import (
	"fmt"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// SeedPassword is the password of every seeded user.
const SeedPassword = "wanderlust123"

// Seeded user ids.
const (
	Alice int64 = 1
	Bob   int64 = 2
	Carol int64 = 3
	Dave  int64 = 4
)

// Seeded destination ids.
const (
	Lisbon    int64 = 11
	Kyoto     int64 = 12
	Reykjavik int64 = 13
)

// Seeded trip ids. Dates are relative to the store's today.
const (
	// TripLisbon is Alice's upcoming trip, Bob is a member.
	TripLisbon int64 = 21
	// TripKyoto is Bob's upcoming trip, full with Carol.
	TripKyoto int64 = 22
	// TripReykjavik is Alice's completed trip with Carol.
	TripReykjavik int64 = 23
	// TripPorto starts in two days, past the change cutoff. Alice is a member.
	TripPorto int64 = 24
	// TripLisbonDave is Dave's open Lisbon trip overlapping TripLisbon.
	TripLisbonDave int64 = 25
	// TripCancelled is Bob's cancelled trip with Alice.
	TripCancelled int64 = 26
)

// Seed loads a small fixed data set.
func (s *Server) Seed() error {
	return Seed(s.store)
}

// Seed loads a small fixed data set into st.
func Seed(st *Store) error {
	users := []models.User{
		{ID: Alice, Username: "alice", Email: "alice@example.com", FirstName: "Alice"},
		{ID: Bob, Username: "bob", Email: "bob@example.com", FirstName: "Bob"},
		{ID: Carol, Username: "carol", Email: "carol@example.com", FirstName: "Carol"},
		{ID: Dave, Username: "dave", Email: "dave@example.com", FirstName: "Dave"},
	}
	for _, u := range users {
		if _, err := st.AddUser(u, SeedPassword); err != nil {
			return fmt.Errorf("seeding user %s: %w", u.Username, err)
		}
	}
	st.SetSubscription(Alice, "premium", 30)

	st.AddDestination(Destination{ID: Lisbon, Name: "Lisbon", Location: "Portugal"})
	st.AddDestination(Destination{ID: Kyoto, Name: "Kyoto", Location: "Japan"})
	st.AddDestination(Destination{ID: Reykjavik, Name: "Reykjavik", Location: "Iceland"})

	today := st.today()
	trip := func(id, creator, dest int64, startIn, days, max int, members ...int64) *models.Trip {
		t := &models.Trip{
			ID:          id,
			CreatorID:   creator,
			Destination: models.DestinationRef{ID: dest},
			StartDate:   today.AddDays(startIn),
			EndDate:     today.AddDays(startIn + days - 1),
			MaxMembers:  max,
			Members:     []models.UserRef{},
		}
		for _, m := range members {
			t.Members = append(t.Members, models.UserRef{ID: m})
		}
		return t
	}

	st.AddTrip(trip(TripLisbon, Alice, Lisbon, 20, 5, 4, Bob), []int64{1, 2})
	st.AddTrip(trip(TripKyoto, Bob, Kyoto, 10, 4, 1, Carol), []int64{3})
	completed := trip(TripReykjavik, Alice, Reykjavik, -20, 6, 3, Carol)
	completed.Status = models.TripStatusCompleted
	st.AddTrip(completed, []int64{4})
	st.AddTrip(trip(TripPorto, Carol, Lisbon, 2, 3, 3, Alice), []int64{1})
	st.AddTrip(trip(TripLisbonDave, Dave, Lisbon, 22, 4, 3), []int64{1, 2, 5})
	cancelled := trip(TripCancelled, Bob, Kyoto, 40, 3, 3, Alice)
	cancelled.Status = models.TripStatusCancelled
	st.AddTrip(cancelled, nil)

	st.Notify(Alice, TripReykjavik, string(models.NotificationReviewReminder), "How was Reykjavik? Leave a review.")
	return nil
}
