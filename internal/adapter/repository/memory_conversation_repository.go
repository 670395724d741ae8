package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
)

// MemoryConversationRepository is an in-process ConversationRepository used in
// tests and when no Firestore project is configured. The mutex stands in for
// Firestore's per-document write serialization: appends to one conversation
// serialize, and the key map plays the uniqueness-constraint role.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entity.Conversation
	byKey         map[string]string
	messages      map[string][]*entity.Message
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*entity.Conversation),
		byKey:         make(map[string]string),
		messages:      make(map[string][]*entity.Message),
	}
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return &out
}

func cloneMessage(m *entity.Message) *entity.Message {
	out := *m
	return &out
}

func (r *MemoryConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if err := conversation.CheckLedger(); err != nil {
		return errors.BadRequest("Invalid conversation", err)
	}
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byKey[conversation.Key]; taken {
		return errors.Conflict("Conversation already exists for this product and participants")
	}
	r.byKey[conversation.Key] = conversation.ID
	r.conversations[conversation.ID] = cloneConversation(conversation)

	return nil
}

func (r *MemoryConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(conversation), nil
}

func (r *MemoryConversationRepository) FindByKey(ctx context.Context, productID, userA, userB string) (*entity.Conversation, error) {
	key := entity.ConversationKey(productID, userA, userB)

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(r.conversations[id]), nil
}

func (r *MemoryConversationRepository) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	now := time.Now()
	message := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Seq:            conversation.MessageSeq + 1,
		Timestamp:      now,
		Read:           false,
	}

	if err := conversation.ApplyAppend(message); err != nil {
		return nil, errors.Internal("Failed to append message", err)
	}
	conversation.UpdatedAt = now
	r.messages[conversationID] = append(r.messages[conversationID], cloneMessage(message))

	return message, nil
}

func (r *MemoryConversationRepository) MarkRead(ctx context.Context, conversationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}

	for _, message := range r.messages[conversationID] {
		if message.SenderID != userID {
			message.Read = true
		}
	}

	if err := conversation.ResetUnread(userID); err != nil {
		return errors.Internal("Failed to reset unread count", err)
	}
	conversation.UpdatedAt = time.Now()

	return nil
}

func (r *MemoryConversationRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conversations []*entity.Conversation
	for _, conversation := range r.conversations {
		if conversation.IsParticipant(userID) {
			conversations = append(conversations, cloneConversation(conversation))
		}
	}

	SortConversations(conversations)
	return conversations, nil
}

func (r *MemoryConversationRepository) MessagesByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	// Messages are appended in seq order under the lock, so the slice is
	// already sorted.
	messages := make([]*entity.Message, 0, len(r.messages[conversationID]))
	for _, message := range r.messages[conversationID] {
		messages = append(messages, cloneMessage(message))
	}
	return messages, nil
}

func (r *MemoryConversationRepository) UnreadTotal(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conversation := range r.conversations {
		if conversation.IsParticipant(userID) {
			total += conversation.UnreadCount[userID]
		}
	}
	return total, nil
}

var _ repository.ConversationRepository = (*MemoryConversationRepository)(nil)
