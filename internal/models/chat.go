package models

import "time"

// ChatMessage is a message in a trip's group chat, as delivered over the
// WebSocket and by the chat history endpoint.
type ChatMessage struct {
	MessageID            int64     `json:"message_id"`
	TripID               int64     `json:"trip_id,omitempty"`
	Message              string    `json:"message"`
	SenderID             int64     `json:"sender_id"`
	SenderUsername       string    `json:"sender_username"`
	SenderProfilePicture string    `json:"sender_profile_picture,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
	FormattedTimestamp   string    `json:"formatted_timestamp,omitempty"`
}

// OutgoingChatMessage is the frame a client sends to post a message.
type OutgoingChatMessage struct {
	Message string `json:"message"`
}
