package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection("conversations")
}

func (r *firestoreConversationRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection("messages")
}

// Create reserves the conversation key and writes the conversation document in
// one transaction. The key document is the uniqueness constraint for the
// (product, unordered pair) composite: the loser of a concurrent create gets
// AlreadyExists on it and surfaces CONFLICT so the caller can re-find.
func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if err := conversation.CheckLedger(); err != nil {
		return errors.BadRequest("Invalid conversation", err)
	}
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	keyRef := r.client.Collection("conversation_keys").Doc(conversation.Key)
	convRef := r.conversations().Doc(conversation.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(keyRef, map[string]interface{}{"conversationId": conversation.ID}); err != nil {
			return err
		}
		return tx.Create(convRef, conversation)
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Conversation already exists for this product and participants")
		}
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) FindByKey(ctx context.Context, productID, userA, userB string) (*entity.Conversation, error) {
	key := entity.ConversationKey(productID, userA, userB)

	iter := r.conversations().Where("key", "==", key).Limit(1).Documents(ctx)
	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to query conversation by key", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

// AppendMessage is a single read-modify-write transaction per conversation:
// the sequence number, the message document, the lastMessage cache and the
// unread increments all commit together.
func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error) {
	convRef := r.conversations().Doc(conversationID)
	var message *entity.Message

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			return err
		}

		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			return err
		}

		now := time.Now()
		message = &entity.Message{
			ID:             uuid.New().String(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			Seq:            conversation.MessageSeq + 1,
			Timestamp:      now,
			Read:           false,
		}

		if err := conversation.ApplyAppend(message); err != nil {
			return err
		}
		conversation.UpdatedAt = now

		if err := tx.Create(r.messages(conversationID).Doc(message.ID), message); err != nil {
			return err
		}
		return tx.Set(convRef, &conversation)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to append message", err)
	}

	return message, nil
}

func (r *firestoreConversationRepository) MarkRead(ctx context.Context, conversationID, userID string) error {
	convRef := r.conversations().Doc(conversationID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			return err
		}

		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			return err
		}

		// All reads must precede writes in a Firestore transaction.
		unreadDocs, err := tx.Documents(r.messages(conversationID).Where("read", "==", false)).GetAll()
		if err != nil {
			return err
		}

		for _, msgDoc := range unreadDocs {
			var message entity.Message
			if err := msgDoc.DataTo(&message); err != nil {
				return err
			}
			if message.SenderID == userID {
				continue
			}
			if err := tx.Update(msgDoc.Ref, []firestore.Update{{Path: "read", Value: true}}); err != nil {
				return err
			}
		}

		if err := conversation.ResetUnread(userID); err != nil {
			return err
		}
		conversation.UpdatedAt = time.Now()
		return tx.Set(convRef, &conversation)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Internal("Failed to mark conversation read", err)
	}

	return nil
}

func (r *firestoreConversationRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	docs, err := r.conversations().Where("participants", "array-contains", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to fetch conversations", err)
	}

	var conversations []*entity.Conversation
	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			continue
		}
		conversations = append(conversations, &conversation)
	}

	SortConversations(conversations)
	return conversations, nil
}

// SortConversations orders by lastMessage timestamp descending; conversations
// without messages sort last, newest-created first.
func SortConversations(conversations []*entity.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i], conversations[j]
		switch {
		case a.LastMessage != nil && b.LastMessage != nil:
			return a.LastMessage.Timestamp.After(b.LastMessage.Timestamp)
		case a.LastMessage != nil:
			return true
		case b.LastMessage != nil:
			return false
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}

func (r *firestoreConversationRepository) MessagesByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	iter := r.messages(conversationID).OrderBy("seq", firestore.Asc).Documents(ctx)

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreConversationRepository) UnreadTotal(ctx context.Context, userID string) (int, error) {
	docs, err := r.conversations().Where("participants", "array-contains", userID).Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to fetch conversations", err)
	}

	total := 0
	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			continue
		}
		total += conversation.UnreadCount[userID]
	}

	return total, nil
}
