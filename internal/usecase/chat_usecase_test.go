package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	adapterrepo "campusmarket/internal/adapter/repository"
	"campusmarket/internal/domain/entity"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/pkg/errors"
)

// fakeGateway records fan-out calls instead of pushing to live connections.
type fakeGateway struct {
	mu           sync.Mutex
	userEvents   map[string][][]byte
	convEvents   map[string][][]byte
	convExcepted map[string][]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		userEvents:   make(map[string][][]byte),
		convEvents:   make(map[string][][]byte),
		convExcepted: make(map[string][]string),
	}
}

func (g *fakeGateway) SendToUser(userID string, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userEvents[userID] = append(g.userEvents[userID], payload)
}

func (g *fakeGateway) SendToConversation(conversationID string, payload []byte, exceptUserID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.convEvents[conversationID] = append(g.convEvents[conversationID], payload)
	g.convExcepted[conversationID] = append(g.convExcepted[conversationID], exceptUserID)
}

type fixture struct {
	uc       *ChatUseCase
	convRepo *adapterrepo.MemoryConversationRepository
	gateway  *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := adapterrepo.NewMemoryProductRepository()
	products.Put(&entity.Product{ID: "prod-1", SellerID: "seller", Title: "Calculus Textbook", Price: 25})

	users := adapterrepo.NewMemoryUserRepository()
	users.Put(&entity.User{ID: "buyer", Name: "Ana"})
	users.Put(&entity.User{ID: "seller", Name: "Ben"})

	convRepo := adapterrepo.NewMemoryConversationRepository()
	gateway := newFakeGateway()

	return &fixture{
		uc:       NewChatUseCase(convRepo, users, products, gateway),
		convRepo: convRepo,
		gateway:  gateway,
	}
}

func TestStartOrGetChatCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")
	assert.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.ElementsMatch(t, []string{"buyer", "seller"}, resp.Participants)
	assert.Equal(t, "Calculus Textbook", resp.Product.Title)
	assert.Equal(t, "Ben", resp.OtherUser.Name)

	// Second call from either side resolves to the same conversation
	again, err := f.uc.StartOrGetChat(ctx, "seller", "prod-1", "buyer")
	assert.NoError(t, err)
	assert.Equal(t, resp.ID, again.ID)
	assert.Equal(t, "Ana", again.OtherUser.Name)
}

func TestStartOrGetChatRejectsSelfChat(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.StartOrGetChat(context.Background(), "buyer", "prod-1", "buyer")
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))
}

func TestStartOrGetChatUnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.StartOrGetChat(context.Background(), "buyer", "missing", "seller")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

// racingConversationRepo reports the conversation as absent once, so the
// use case's create hits the key reservation the "other participant" already
// committed.
type racingConversationRepo struct {
	*adapterrepo.MemoryConversationRepository
	mu     sync.Mutex
	missed bool
}

func (r *racingConversationRepo) FindByKey(ctx context.Context, productID, userA, userB string) (*entity.Conversation, error) {
	r.mu.Lock()
	first := !r.missed
	r.missed = true
	r.mu.Unlock()

	if first {
		return nil, errors.NotFound("Conversation", nil)
	}
	return r.MemoryConversationRepository.FindByKey(ctx, productID, userA, userB)
}

func TestStartOrGetChatRecoversFromCreateRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing, err := entity.NewConversation("prod-1", "buyer", "seller")
	assert.NoError(t, err)
	assert.NoError(t, f.convRepo.Create(ctx, existing))

	racing := &racingConversationRepo{MemoryConversationRepository: f.convRepo}
	uc := NewChatUseCase(racing, f.uc.userRepo, f.uc.productRepo, f.gateway)

	resp, err := uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")
	assert.NoError(t, err)
	assert.Equal(t, existing.ID, resp.ID, "loser of the create race must land on the winner's conversation")
}

func TestSendMessageFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")
	assert.NoError(t, err)

	msg, err := f.uc.SendMessage(ctx, conv.ID, "buyer", "  is this still available?  ")
	assert.NoError(t, err)
	assert.Equal(t, "is this still available?", msg.Content, "content is trimmed")
	assert.Equal(t, int64(1), msg.Seq)

	// Conversation channel got the message, skipping the sender
	assert.Len(t, f.gateway.convEvents[conv.ID], 1)
	assert.Equal(t, []string{"buyer"}, f.gateway.convExcepted[conv.ID])

	var event ws.Event
	assert.NoError(t, json.Unmarshal(f.gateway.convEvents[conv.ID][0], &event))
	assert.Equal(t, ws.EventNewMessage, event.Event)

	var delivered entity.Message
	assert.NoError(t, json.Unmarshal(event.Data, &delivered))
	assert.Equal(t, msg.ID, delivered.ID)

	// The counterpart's personal channel got a notification
	assert.Len(t, f.gateway.userEvents["seller"], 1)
	assert.Empty(t, f.gateway.userEvents["buyer"])

	assert.NoError(t, json.Unmarshal(f.gateway.userEvents["seller"][0], &event))
	assert.Equal(t, ws.EventNewNotification, event.Event)

	var notification entity.Notification
	assert.NoError(t, json.Unmarshal(event.Data, &notification))
	assert.Equal(t, conv.ID, notification.ConversationID)
	assert.Equal(t, "New message from Ana", notification.Body)
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _ := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")

	_, err := f.uc.SendMessage(ctx, conv.ID, "buyer", "   ")
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _ := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")

	_, err := f.uc.SendMessage(ctx, conv.ID, "stranger", "let me in")
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = f.uc.SendMessage(ctx, "missing", "buyer", "hello")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestGetMessagesMarksRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _ := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")
	f.uc.SendMessage(ctx, conv.ID, "buyer", "hello")
	f.uc.SendMessage(ctx, conv.ID, "buyer", "still there?")

	detail, err := f.uc.GetMessages(ctx, conv.ID, "seller")
	assert.NoError(t, err)
	assert.Len(t, detail.Messages, 2)
	assert.Equal(t, 0, detail.UnreadCount["seller"], "fetch marks the conversation read")
	for _, m := range detail.Messages {
		assert.True(t, m.Read)
	}
	assert.Equal(t, int64(1), detail.Messages[0].Seq)
	assert.Equal(t, int64(2), detail.Messages[1].Seq)

	total, _ := f.uc.UnreadTotal(ctx, "seller")
	assert.Equal(t, 0, total)
}

func TestGetMessagesForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _ := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")

	_, err := f.uc.GetMessages(ctx, conv.ID, "stranger")
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, err = f.uc.GetMessages(ctx, "missing", "buyer")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestListChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _ := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")
	f.uc.SendMessage(ctx, conv.ID, "seller", "yes, still available")
	time.Sleep(time.Millisecond)

	list, err := f.uc.ListChats(ctx, "buyer")
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, "yes, still available", list[0].LastMessage.Content)
	assert.Equal(t, 1, list[0].UnreadCount["buyer"])
	assert.Equal(t, "Ben", list[0].OtherUser.Name)

	empty, err := f.uc.ListChats(ctx, "stranger")
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIsParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, _ := f.uc.StartOrGetChat(ctx, "buyer", "prod-1", "seller")

	ok, err := f.uc.IsParticipant(ctx, conv.ID, "buyer")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.uc.IsParticipant(ctx, conv.ID, "stranger")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.uc.IsParticipant(ctx, "missing", "buyer")
	assert.NoError(t, err)
	assert.False(t, ok, "unknown conversation denies rather than errors")
}
