package models

import (
	"fmt"
	"time"
)

// NotificationStream identifies one of the two notification feeds.
type NotificationStream string

const (
	// StreamTrip carries trip lifecycle events.
	StreamTrip NotificationStream = "trip"
	// StreamChat carries chat message notices.
	StreamChat NotificationStream = "chat"
)

// NotificationType is the closed set of trip-event notification kinds.
type NotificationType string

const (
	NotificationNewMember      NotificationType = "new_member"
	NotificationTripCancelled  NotificationType = "trip_cancelled"
	NotificationTripJoined     NotificationType = "trip_joined"
	NotificationTripLeft       NotificationType = "trip_left"
	NotificationTripUpdated    NotificationType = "trip_updated"
	NotificationReviewReminder NotificationType = "review_reminder"
	NotificationMemberRemoved  NotificationType = "member_removed"
	// NotificationUnknown stands in for wire values this client does not know.
	NotificationUnknown NotificationType = "unknown"
)

// ValidNotificationTypes returns all known notification types.
func ValidNotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationNewMember,
		NotificationTripCancelled,
		NotificationTripJoined,
		NotificationTripLeft,
		NotificationTripUpdated,
		NotificationReviewReminder,
		NotificationMemberRemoved,
	}
}

// IsValid returns true for known, non-placeholder types.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationNewMember, NotificationTripCancelled, NotificationTripJoined,
		NotificationTripLeft, NotificationTripUpdated, NotificationReviewReminder,
		NotificationMemberRemoved:
		return true
	default:
		return false
	}
}

// ParseNotificationType maps a wire value to a type. Unknown values map to
// NotificationUnknown and ok is false.
func ParseNotificationType(s string) (t NotificationType, ok bool) {
	t = NotificationType(s)
	if t.IsValid() {
		return t, true
	}
	return NotificationUnknown, false
}

// TripEvent is the payload of a trip-stream notification.
type TripEvent struct {
	Type               NotificationType
	RawType            string
	RelatedUserName    string
	RelatedUserPicture string
	Message            string
}

// ChatEvent is the payload of a chat-stream notification.
type ChatEvent struct {
	ChatMessageID int64
	SenderID      int64
	SenderName    string
	SenderPicture string
	Preview       string
}

// Notification is a single item in either stream. Exactly one of Event or
// Chat is set, matching Stream.
type Notification struct {
	ID            int64
	Stream        NotificationStream
	TripID        int64
	TripName      string
	CreatedAt     time.Time
	FormattedDate string
	Read          bool

	Event *TripEvent
	Chat  *ChatEvent
}

// Describe renders a one-line human summary of the notification.
func (n *Notification) Describe() string {
	if n.Stream == StreamChat && n.Chat != nil {
		return fmt.Sprintf("%s in %s: %s", n.Chat.SenderName, n.TripName, n.Chat.Preview)
	}
	if n.Event == nil {
		return n.TripName
	}

	who := n.Event.RelatedUserName
	switch n.Event.Type {
	case NotificationNewMember:
		return fmt.Sprintf("%s joined your trip to %s", who, n.TripName)
	case NotificationTripCancelled:
		return fmt.Sprintf("Trip to %s was cancelled", n.TripName)
	case NotificationTripJoined:
		return fmt.Sprintf("You joined the trip to %s", n.TripName)
	case NotificationTripLeft:
		return fmt.Sprintf("%s left the trip to %s", who, n.TripName)
	case NotificationTripUpdated:
		return fmt.Sprintf("Trip to %s was updated", n.TripName)
	case NotificationReviewReminder:
		return fmt.Sprintf("How was %s? Leave a review", n.TripName)
	case NotificationMemberRemoved:
		return fmt.Sprintf("You were removed from the trip to %s", n.TripName)
	case NotificationUnknown:
		if n.Event.Message != "" {
			return n.Event.Message
		}
		return fmt.Sprintf("Update for %s", n.TripName)
	default:
		return n.Event.Message
	}
}

// Clone returns a deep copy.
func (n *Notification) Clone() *Notification {
	c := *n
	if n.Event != nil {
		e := *n.Event
		c.Event = &e
	}
	if n.Chat != nil {
		ch := *n.Chat
		c.Chat = &ch
	}
	return &c
}
