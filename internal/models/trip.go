package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TripStatus represents the lifecycle status of a trip.
type TripStatus string

const (
	// TripStatusUpcoming indicates the trip has not started yet.
	TripStatusUpcoming TripStatus = "upcoming"
	// TripStatusOngoing indicates today falls within the trip dates.
	TripStatusOngoing TripStatus = "ongoing"
	// TripStatusCompleted indicates the trip's end date has passed.
	TripStatusCompleted TripStatus = "completed"
	// TripStatusCancelled is terminal: a cancelled trip never returns to another status.
	TripStatusCancelled TripStatus = "cancelled"
)

// String returns the string representation of the trip status.
func (s TripStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is one of the known statuses.
func (s TripStatus) IsValid() bool {
	switch s {
	case TripStatusUpcoming, TripStatusOngoing, TripStatusCompleted, TripStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses a trip can never leave.
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCancelled
}

// ValidTripStatuses returns all valid trip statuses.
func ValidTripStatuses() []TripStatus {
	return []TripStatus{
		TripStatusUpcoming,
		TripStatusOngoing,
		TripStatusCompleted,
		TripStatusCancelled,
	}
}

// UserRef is a user as embedded in trip payloads. The server sends either a
// bare id or an object depending on the endpoint.
type UserRef struct {
	ID             int64  `json:"id"`
	Username       string `json:"username,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// UnmarshalJSON accepts a numeric id or a user object.
func (u *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decoding user reference: %w", err)
		}
		*u = UserRef{ID: id}
		return nil
	}
	type plain UserRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding user reference: %w", err)
	}
	*u = UserRef(p)
	return nil
}

// DestinationRef is a destination as embedded in trip payloads, either a bare id or an object.
type DestinationRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Image    string `json:"image,omitempty"`
}

// UnmarshalJSON accepts a numeric id or a destination object.
func (d *DestinationRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = DestinationRef{}
		return nil
	}
	if len(data) > 0 && data[0] != '{' {
		var id int64
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decoding destination reference: %w", err)
		}
		*d = DestinationRef{ID: id}
		return nil
	}
	type plain DestinationRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding destination reference: %w", err)
	}
	*d = DestinationRef(p)
	return nil
}

// CancellationInfo records who cancelled a trip and when.
type CancellationInfo struct {
	Username    string    `json:"username"`
	IsCreator   bool      `json:"is_creator"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Trip is a planned group journey to a destination.
// The creator is an implicit member and is not listed in Members.
type Trip struct {
	ID                  int64             `json:"id"`
	CreatorID           int64             `json:"user,omitempty"`
	Creator             *UserRef          `json:"creator,omitempty"`
	Destination         DestinationRef    `json:"destination"`
	DestinationName     string            `json:"destination_name,omitempty"`
	DestinationLocation string            `json:"destination_location,omitempty"`
	StartDate           Date              `json:"start_date"`
	EndDate             Date              `json:"end_date"`
	MaxMembers          int               `json:"max_members"`
	Members             []UserRef         `json:"members"`
	Description         string            `json:"description,omitempty"`
	Status              TripStatus        `json:"status"`
	CancelledByInfo     *CancellationInfo `json:"cancelled_by_info,omitempty"`
	CompatibilityScore  float64           `json:"compatibility_score,omitempty"`
}

// OwnerID returns the creator's user id from whichever field the payload carried.
func (t *Trip) OwnerID() int64 {
	if t.CreatorID != 0 {
		return t.CreatorID
	}
	if t.Creator != nil {
		return t.Creator.ID
	}
	return 0
}

// IsCreator reports whether userID created the trip.
func (t *Trip) IsCreator(userID int64) bool {
	return userID != 0 && t.OwnerID() == userID
}

// IsMember reports whether userID is in the member list.
func (t *Trip) IsMember(userID int64) bool {
	for _, m := range t.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// IsParticipant reports whether userID is the creator or a member.
func (t *Trip) IsParticipant(userID int64) bool {
	return t.IsCreator(userID) || t.IsMember(userID)
}

// MemberCount is the displayed head count: listed members plus the creator.
func (t *Trip) MemberCount() int {
	return len(t.Members) + 1
}

// IsFull reports whether the member list has reached capacity.
func (t *Trip) IsFull() bool {
	return t.MaxMembers > 0 && len(t.Members) >= t.MaxMembers
}

// IsCancelled reports whether the trip is in the terminal cancelled status.
func (t *Trip) IsCancelled() bool {
	return t.Status == TripStatusCancelled
}

// Overlaps reports whether the two trips share at least one calendar day.
func (t *Trip) Overlaps(o *Trip) bool {
	return !t.EndDate.Before(o.StartDate) && !o.EndDate.Before(t.StartDate)
}

// Name returns a display name for the trip's destination.
func (t *Trip) Name() string {
	if t.DestinationName != "" {
		return t.DestinationName
	}
	if t.Destination.Name != "" {
		return t.Destination.Name
	}
	return fmt.Sprintf("trip #%d", t.ID)
}

// RemoveMember drops userID from the member list. It reports whether the member was present.
func (t *Trip) RemoveMember(userID int64) bool {
	for i, m := range t.Members {
		if m.ID == userID {
			t.Members = append(t.Members[:i:i], t.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of a cache.
func (t *Trip) Clone() *Trip {
	c := *t
	if t.Creator != nil {
		creator := *t.Creator
		c.Creator = &creator
	}
	if t.Members != nil {
		c.Members = make([]UserRef, len(t.Members))
		copy(c.Members, t.Members)
	}
	if t.CancelledByInfo != nil {
		info := *t.CancelledByInfo
		c.CancelledByInfo = &info
	}
	return &c
}
