package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
)

// Gateway is the realtime fan-out surface the chat service publishes to.
// Delivery is fire-and-forget; the store stays the source of truth.
type Gateway interface {
	SendToUser(userID string, payload []byte)
	SendToConversation(conversationID string, payload []byte, exceptUserID string)
}

type ChatUseCase struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	productRepo      repository.ProductRepository
	gateway          Gateway
}

func NewChatUseCase(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	gateway Gateway,
) *ChatUseCase {
	return &ChatUseCase{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		productRepo:      productRepo,
		gateway:          gateway,
	}
}

type ConversationResponse struct {
	*entity.Conversation
	Product   *entity.Product `json:"product,omitempty"`
	OtherUser *entity.User    `json:"other_user,omitempty"`
}

type ConversationDetail struct {
	ConversationResponse
	Messages []*entity.Message `json:"messages"`
}

// StartOrGetChat resolves the conversation for (product, {requester, seller}),
// creating it on first contact. Losing the create race to the other
// participant is recovered by re-running the find.
func (uc *ChatUseCase) StartOrGetChat(ctx context.Context, requesterID, productID, sellerID string) (*ConversationResponse, error) {
	if sellerID == requesterID {
		return nil, errors.BadRequest("Cannot chat with yourself", nil)
	}

	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		logger.Warn("StartOrGetChat: product %s not found: %v", productID, err)
		return nil, errors.NotFound("Product", err)
	}

	conversation, err := uc.conversationRepo.FindByKey(ctx, productID, requesterID, sellerID)
	if err != nil {
		if !errors.Is(err, "NOT_FOUND") {
			return nil, err
		}

		fresh, err := entity.NewConversation(productID, requesterID, sellerID)
		if err != nil {
			return nil, errors.BadRequest("Invalid conversation participants", err)
		}

		if err := uc.conversationRepo.Create(ctx, fresh); err != nil {
			if !errors.Is(err, "CONFLICT") {
				return nil, err
			}
			// The other participant committed first; both calls must
			// resolve to that single conversation.
			conversation, err = uc.conversationRepo.FindByKey(ctx, productID, requesterID, sellerID)
			if err != nil {
				return nil, err
			}
		} else {
			conversation = fresh
			logger.Info("StartOrGetChat: created conversation %s for product %s", fresh.ID, productID)
		}
	}

	return uc.buildResponse(ctx, conversation, requesterID, product), nil
}

// GetMessages returns the conversation with its full message log, marking it
// read for the requester first so the returned state already reflects the
// fetch.
func (uc *ChatUseCase) GetMessages(ctx context.Context, conversationID, requesterID string) (*ConversationDetail, error) {
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(requesterID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}

	if err := uc.conversationRepo.MarkRead(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	if err := conversation.ResetUnread(requesterID); err != nil {
		return nil, errors.Internal("Failed to reset unread count", err)
	}

	messages, err := uc.conversationRepo.MessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, message := range messages {
		if message.SenderID != requesterID {
			message.Read = true
		}
	}

	return &ConversationDetail{
		ConversationResponse: *uc.buildResponse(ctx, conversation, requesterID, nil),
		Messages:             messages,
	}, nil
}

// SendMessage persists the message, then fans it out: the conversation topic
// gets the message itself, the other participant's user topic gets a
// notification for the cross-conversation badge. Broadcast failures are
// silent; the next fetch reconciles.
func (uc *ChatUseCase) SendMessage(ctx context.Context, conversationID, requesterID, content string) (*entity.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.BadRequest("Message content is required", nil)
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(requesterID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}

	message, err := uc.conversationRepo.AppendMessage(ctx, conversationID, requesterID, content)
	if err != nil {
		return nil, err
	}

	uc.fanOut(ctx, conversation, message)
	return message, nil
}

func (uc *ChatUseCase) fanOut(ctx context.Context, conversation *entity.Conversation, message *entity.Message) {
	if payload, err := ws.MarshalEvent(ws.EventNewMessage, message); err == nil {
		uc.gateway.SendToConversation(conversation.ID, payload, message.SenderID)
	}

	notification := entity.Notification{
		ID:             uuid.New().String(),
		Type:           "message",
		Title:          "New Message",
		Body:           uc.notificationBody(ctx, message),
		ConversationID: conversation.ID,
		SenderID:       message.SenderID,
		Timestamp:      time.Now(),
	}
	if payload, err := ws.MarshalEvent(ws.EventNewNotification, notification); err == nil {
		uc.gateway.SendToUser(conversation.OtherParticipant(message.SenderID), payload)
	}
}

func (uc *ChatUseCase) notificationBody(ctx context.Context, message *entity.Message) string {
	sender, err := uc.userRepo.GetByID(ctx, message.SenderID)
	if err != nil {
		return "You have a new message"
	}
	return fmt.Sprintf("New message from %s", sender.Name)
}

// ListChats returns the caller's conversations, newest activity first, with
// product and counterpart profile embeds for the list view.
func (uc *ChatUseCase) ListChats(ctx context.Context, requesterID string) ([]*ConversationResponse, error) {
	conversations, err := uc.conversationRepo.ListByUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	responses := make([]*ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		responses = append(responses, uc.buildResponse(ctx, conversation, requesterID, nil))
	}
	return responses, nil
}

func (uc *ChatUseCase) UnreadTotal(ctx context.Context, requesterID string) (int, error) {
	return uc.conversationRepo.UnreadTotal(ctx, requesterID)
}

// IsParticipant lets the realtime gateway authorize conversation
// subscriptions without reaching into the store itself.
func (uc *ChatUseCase) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return false, nil
		}
		return false, err
	}
	return conversation.IsParticipant(userID), nil
}

func (uc *ChatUseCase) buildResponse(ctx context.Context, conversation *entity.Conversation, requesterID string, product *entity.Product) *ConversationResponse {
	response := &ConversationResponse{Conversation: conversation, Product: product}

	if response.Product == nil {
		p, err := uc.productRepo.GetByID(ctx, conversation.ProductID)
		if err == nil {
			response.Product = p
		} else {
			logger.Warn("Conversation %s references missing product %s: %v", conversation.ID, conversation.ProductID, err)
		}
	}

	if otherID := conversation.OtherParticipant(requesterID); otherID != "" {
		other, err := uc.userRepo.GetByID(ctx, otherID)
		if err == nil {
			response.OtherUser = other
		} else {
			logger.Warn("Conversation %s references missing user %s: %v", conversation.ID, otherID, err)
		}
	}

	return response
}
