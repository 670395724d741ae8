package entity

import "time"

// Message is one entry in a conversation's append-only log. Seq is the
// server-assigned per-conversation sequence number and defines ordering;
// Timestamp is for display only. Only the Read flag mutates after creation.
type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	SenderID       string    `json:"sender_id" firestore:"senderId"`
	Content        string    `json:"content" firestore:"content"`
	Seq            int64     `json:"seq" firestore:"seq"`
	Timestamp      time.Time `json:"timestamp" firestore:"timestamp"`
	Read           bool      `json:"read" firestore:"read"`
}
