package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/travel-buddy/internal/chat"
	"github.com/narvanalabs/travel-buddy/internal/models"
)

const waitTimeout = 3 * time.Second

// TripNotifications fetches the traveler's trip stream.
func (tr *Traveler) TripNotifications(t *testing.T) []*models.Notification {
	t.Helper()
	items, err := tr.Notifications.Trip().Fetch(context.Background())
	require.NoError(t, err)
	return items
}

// NotificationTypes lists the event types of a trip stream, newest first.
func NotificationTypes(items []*models.Notification) []models.NotificationType {
	out := make([]models.NotificationType, 0, len(items))
	for _, n := range items {
		if n.Event != nil {
			out = append(out, n.Event.Type)
		}
	}
	return out
}

// ReceiveMessage waits for the next chat message on conn.
func ReceiveMessage(t *testing.T, conn *chat.Conn) *models.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-conn.Messages():
		require.True(t, ok, "chat connection ended")
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for chat message")
		return nil
	}
}

// WaitForState waits until conn reaches state.
func WaitForState(t *testing.T, conn *chat.Conn, state chat.State) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.State() == state }, waitTimeout, 5*time.Millisecond,
		"chat state is %s, want %s", conn.State(), state)
}
