package api

import (
	"context"
	"fmt"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// ChatHistory fetches the stored messages of a trip's group chat.
func (c *Client) ChatHistory(ctx context.Context, tripID int64) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage
	if err := c.get(ctx, fmt.Sprintf("/trip/%d/chat/", tripID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// PostChatMessage sends a chat message over REST, used when the socket is down.
func (c *Client) PostChatMessage(ctx context.Context, tripID int64, text string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := c.post(ctx, fmt.Sprintf("/trip/%d/chat/", tripID), models.OutgoingChatMessage{Message: text}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
