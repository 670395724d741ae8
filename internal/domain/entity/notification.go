package entity

import "time"

// Notification is a transient cross-conversation alert delivered over the
// realtime gateway's user channel. Notifications are never persisted; missed
// ones are reconciled from the durable unread totals.
type Notification struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"` // "message"
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	ConversationID string    `json:"conversation_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Read           bool      `json:"read"`
}
