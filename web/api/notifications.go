package api

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// TripNotificationPayload is the wire form of a trip-stream notification.
type TripNotificationPayload struct {
	ID                 int64     `json:"id"`
	NotificationType   string    `json:"notification_type"`
	Trip               int64     `json:"trip"`
	TripName           string    `json:"trip_name"`
	RelatedUserName    string    `json:"related_user_name,omitempty"`
	RelatedUserPicture string    `json:"related_user_picture,omitempty"`
	Message            string    `json:"message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	FormattedDate      string    `json:"formatted_date,omitempty"`
	IsRead             bool      `json:"is_read"`
}

// ToNotification converts the payload. Unknown types map to models.NotificationUnknown.
func (p *TripNotificationPayload) ToNotification() *models.Notification {
	nt, _ := models.ParseNotificationType(p.NotificationType)
	return &models.Notification{
		ID:            p.ID,
		Stream:        models.StreamTrip,
		TripID:        p.Trip,
		TripName:      p.TripName,
		CreatedAt:     p.CreatedAt,
		FormattedDate: p.FormattedDate,
		Read:          p.IsRead,
		Event: &models.TripEvent{
			Type:               nt,
			RawType:            p.NotificationType,
			RelatedUserName:    p.RelatedUserName,
			RelatedUserPicture: p.RelatedUserPicture,
			Message:            p.Message,
		},
	}
}

// ChatNotificationPayload is the wire form of a chat-stream notification.
type ChatNotificationPayload struct {
	ID             int64     `json:"id"`
	Trip           int64     `json:"trip"`
	TripName       string    `json:"trip_name"`
	ChatMessage    int64     `json:"chat_message"`
	Sender         int64     `json:"sender"`
	SenderName     string    `json:"sender_name"`
	SenderPicture  string    `json:"sender_picture,omitempty"`
	MessagePreview string    `json:"message_preview"`
	CreatedAt      time.Time `json:"created_at"`
	FormattedDate  string    `json:"formatted_date,omitempty"`
	IsRead         bool      `json:"is_read"`
}

// ToNotification converts the payload.
func (p *ChatNotificationPayload) ToNotification() *models.Notification {
	return &models.Notification{
		ID:            p.ID,
		Stream:        models.StreamChat,
		TripID:        p.Trip,
		TripName:      p.TripName,
		CreatedAt:     p.CreatedAt,
		FormattedDate: p.FormattedDate,
		Read:          p.IsRead,
		Chat: &models.ChatEvent{
			ChatMessageID: p.ChatMessage,
			SenderID:      p.Sender,
			SenderName:    p.SenderName,
			SenderPicture: p.SenderPicture,
			Preview:       p.MessagePreview,
		},
	}
}

// UnreadCountResponse is the body of the unread-count endpoints.
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// NotificationUpdate is the body posted to a notification stream endpoint.
type NotificationUpdate struct {
	NotificationIDs []int64 `json:"notification_ids,omitempty"`
	ClearAll        bool    `json:"clear_all,omitempty"`
}

func streamPath(stream models.NotificationStream) (string, error) {
	switch stream {
	case models.StreamTrip:
		return "/notifications/", nil
	case models.StreamChat:
		return "/chat-notifications/", nil
	default:
		return "", fmt.Errorf("unknown notification stream %q", stream)
	}
}

// ListNotifications fetches a stream's notifications, newest first as ordered by the server.
func (c *Client) ListNotifications(ctx context.Context, stream models.NotificationStream) ([]*models.Notification, error) {
	path, err := streamPath(stream)
	if err != nil {
		return nil, err
	}

	if stream == models.StreamChat {
		var payloads []*ChatNotificationPayload
		if err := c.get(ctx, path, &payloads); err != nil {
			return nil, err
		}
		out := make([]*models.Notification, 0, len(payloads))
		for _, p := range payloads {
			out = append(out, p.ToNotification())
		}
		return out, nil
	}

	var payloads []*TripNotificationPayload
	if err := c.get(ctx, path, &payloads); err != nil {
		return nil, err
	}
	out := make([]*models.Notification, 0, len(payloads))
	for _, p := range payloads {
		n := p.ToNotification()
		if n.Event.Type == models.NotificationUnknown {
			c.logger.Warn("unknown notification type",
				"notification_id", p.ID,
				"notification_type", p.NotificationType,
			)
		}
		out = append(out, n)
	}
	return out, nil
}

// UnreadCount fetches the server's unread count for a stream.
func (c *Client) UnreadCount(ctx context.Context, stream models.NotificationStream) (int, error) {
	path, err := streamPath(stream)
	if err != nil {
		return 0, err
	}
	var resp UnreadCountResponse
	if err := c.get(ctx, path+"unread-count/", &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// MarkNotificationsRead marks the given notifications as read.
func (c *Client) MarkNotificationsRead(ctx context.Context, stream models.NotificationStream, ids []int64) error {
	path, err := streamPath(stream)
	if err != nil {
		return err
	}
	return c.post(ctx, path, NotificationUpdate{NotificationIDs: ids}, nil)
}

// ClearNotifications deletes every notification in a stream.
func (c *Client) ClearNotifications(ctx context.Context, stream models.NotificationStream) error {
	path, err := streamPath(stream)
	if err != nil {
		return err
	}
	return c.post(ctx, path, NotificationUpdate{ClearAll: true}, nil)
}
