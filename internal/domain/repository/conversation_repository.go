package repository

import (
	"context"

	"campusmarket/internal/domain/entity"
)

// ConversationRepository is the only writer of conversation state. All
// mutators refresh UpdatedAt; none may change the participant pair or the
// product reference.
type ConversationRepository interface {
	// Create persists a new conversation and reserves its (product, pair) key.
	// Returns a CONFLICT error when the key is already taken.
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// FindByKey treats the participant pair as unordered.
	FindByKey(ctx context.Context, productID, userA, userB string) (*entity.Conversation, error)
	// AppendMessage atomically appends a message, refreshes lastMessage and
	// increments the unread count of every participant except the sender.
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error)
	// MarkRead zeroes userID's unread count and marks the other participant's
	// messages as read. Idempotent.
	MarkRead(ctx context.Context, conversationID, userID string) error
	// ListByUser orders by lastMessage timestamp descending; conversations
	// without messages sort last, by creation time.
	ListByUser(ctx context.Context, userID string) ([]*entity.Conversation, error)
	MessagesByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)
	UnreadTotal(ctx context.Context, userID string) (int, error)
}
