package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
)

func newTestConversation(t *testing.T, productID, userA, userB string) *entity.Conversation {
	t.Helper()
	conv, err := entity.NewConversation(productID, userA, userB)
	assert.NoError(t, err)
	return conv
}

func TestMemoryCreateAndFindByKey(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	conv := newTestConversation(t, "prod-1", "buyer", "seller")
	assert.NoError(t, repo.Create(ctx, conv))
	assert.NotEmpty(t, conv.ID)

	// Pair order must not matter
	found, err := repo.FindByKey(ctx, "prod-1", "seller", "buyer")
	assert.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	_, err = repo.FindByKey(ctx, "prod-2", "buyer", "seller")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestMemoryCreateConflict(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	first := newTestConversation(t, "prod-1", "buyer", "seller")
	assert.NoError(t, repo.Create(ctx, first))

	// Same product, same pair in the other order
	second := newTestConversation(t, "prod-1", "seller", "buyer")
	err := repo.Create(ctx, second)
	assert.True(t, errors.Is(err, "CONFLICT"))

	// Same pair, different product is a distinct conversation
	third := newTestConversation(t, "prod-2", "buyer", "seller")
	assert.NoError(t, repo.Create(ctx, third))
}

func TestMemoryAppendMessage(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	conv := newTestConversation(t, "prod-1", "buyer", "seller")
	assert.NoError(t, repo.Create(ctx, conv))

	m1, err := repo.AppendMessage(ctx, conv.ID, "buyer", "hello")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), m1.Seq)
	assert.False(t, m1.Read)

	m2, err := repo.AppendMessage(ctx, conv.ID, "seller", "hi there")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), m2.Seq)

	stored, err := repo.GetByID(ctx, conv.ID)
	assert.NoError(t, err)
	assert.Equal(t, "hi there", stored.LastMessage.Content)
	assert.Equal(t, "seller", stored.LastMessage.SenderID)
	assert.Equal(t, 1, stored.UnreadCount["buyer"])
	assert.Equal(t, 1, stored.UnreadCount["seller"])

	messages, err := repo.MessagesByConversation(ctx, conv.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "hi there", messages[1].Content)

	_, err = repo.AppendMessage(ctx, "missing", "buyer", "hello")
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestMemoryMarkRead(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	conv := newTestConversation(t, "prod-1", "buyer", "seller")
	assert.NoError(t, repo.Create(ctx, conv))
	repo.AppendMessage(ctx, conv.ID, "buyer", "one")
	repo.AppendMessage(ctx, conv.ID, "buyer", "two")

	assert.NoError(t, repo.MarkRead(ctx, conv.ID, "seller"))

	stored, _ := repo.GetByID(ctx, conv.ID)
	assert.Equal(t, 0, stored.UnreadCount["seller"])

	messages, _ := repo.MessagesByConversation(ctx, conv.ID)
	for _, m := range messages {
		assert.True(t, m.Read)
	}

	// Idempotent
	assert.NoError(t, repo.MarkRead(ctx, conv.ID, "seller"))
	stored, _ = repo.GetByID(ctx, conv.ID)
	assert.Equal(t, 0, stored.UnreadCount["seller"])
}

func TestMemoryListByUserOrdering(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	older := newTestConversation(t, "prod-1", "buyer", "seller-1")
	assert.NoError(t, repo.Create(ctx, older))
	repo.AppendMessage(ctx, older.ID, "buyer", "old message")

	time.Sleep(2 * time.Millisecond)

	newer := newTestConversation(t, "prod-2", "buyer", "seller-2")
	assert.NoError(t, repo.Create(ctx, newer))
	repo.AppendMessage(ctx, newer.ID, "buyer", "new message")

	time.Sleep(2 * time.Millisecond)

	empty := newTestConversation(t, "prod-3", "buyer", "seller-3")
	assert.NoError(t, repo.Create(ctx, empty))

	list, err := repo.ListByUser(ctx, "buyer")
	assert.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, newer.ID, list[0].ID, "newest activity first")
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, empty.ID, list[2].ID, "conversations without messages sort last")

	sellerList, err := repo.ListByUser(ctx, "seller-1")
	assert.NoError(t, err)
	assert.Len(t, sellerList, 1)

	none, err := repo.ListByUser(ctx, "stranger")
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryUnreadTotal(t *testing.T) {
	repo := NewMemoryConversationRepository()
	ctx := context.Background()

	first := newTestConversation(t, "prod-1", "buyer", "seller-1")
	repo.Create(ctx, first)
	second := newTestConversation(t, "prod-2", "buyer", "seller-2")
	repo.Create(ctx, second)

	repo.AppendMessage(ctx, first.ID, "seller-1", "a")
	repo.AppendMessage(ctx, first.ID, "seller-1", "b")
	repo.AppendMessage(ctx, second.ID, "seller-2", "c")

	total, err := repo.UnreadTotal(ctx, "buyer")
	assert.NoError(t, err)
	assert.Equal(t, 3, total)

	assert.NoError(t, repo.MarkRead(ctx, first.ID, "buyer"))
	total, _ = repo.UnreadTotal(ctx, "buyer")
	assert.Equal(t, 1, total)
}
