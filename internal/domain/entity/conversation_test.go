package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationKeyOrderIndependent(t *testing.T) {
	a := ConversationKey("prod-1", "buyer", "seller")
	b := ConversationKey("prod-1", "seller", "buyer")
	assert.Equal(t, a, b)

	other := ConversationKey("prod-2", "buyer", "seller")
	assert.NotEqual(t, a, other)
}

func TestNewConversation(t *testing.T) {
	conv, err := NewConversation("prod-1", "buyer", "seller")
	assert.NoError(t, err)
	assert.Len(t, conv.Participants, 2)
	assert.Equal(t, 0, conv.UnreadCount["buyer"])
	assert.Equal(t, 0, conv.UnreadCount["seller"])
	assert.Equal(t, int64(0), conv.MessageSeq)
	assert.Nil(t, conv.LastMessage)
	assert.NoError(t, conv.CheckLedger())
}

func TestNewConversationRejectsSelfChat(t *testing.T) {
	_, err := NewConversation("prod-1", "buyer", "buyer")
	assert.Error(t, err)
}

func TestNewConversationRejectsEmptyParticipant(t *testing.T) {
	_, err := NewConversation("prod-1", "", "seller")
	assert.Error(t, err)
}

func TestApplyAppend(t *testing.T) {
	conv, _ := NewConversation("prod-1", "buyer", "seller")

	msg := &Message{
		ID:        "m1",
		SenderID:  "buyer",
		Content:   "hello",
		Seq:       1,
		Timestamp: time.Now(),
	}
	assert.NoError(t, conv.ApplyAppend(msg))

	assert.Equal(t, int64(1), conv.MessageSeq)
	assert.Equal(t, "hello", conv.LastMessage.Content)
	assert.Equal(t, "buyer", conv.LastMessage.SenderID)
	assert.Equal(t, 0, conv.UnreadCount["buyer"], "sender unread must not move")
	assert.Equal(t, 1, conv.UnreadCount["seller"])

	msg2 := &Message{ID: "m2", SenderID: "seller", Content: "hi", Seq: 2, Timestamp: time.Now()}
	assert.NoError(t, conv.ApplyAppend(msg2))
	assert.Equal(t, 1, conv.UnreadCount["buyer"])
	assert.Equal(t, 1, conv.UnreadCount["seller"])
}

func TestApplyAppendRejectsNonParticipantSender(t *testing.T) {
	conv, _ := NewConversation("prod-1", "buyer", "seller")
	err := conv.ApplyAppend(&Message{ID: "m1", SenderID: "stranger", Content: "hey", Seq: 1})
	assert.Error(t, err)
}

func TestApplyAppendRejectsSeqGap(t *testing.T) {
	conv, _ := NewConversation("prod-1", "buyer", "seller")
	err := conv.ApplyAppend(&Message{ID: "m1", SenderID: "buyer", Content: "hey", Seq: 5})
	assert.Error(t, err)
}

func TestResetUnread(t *testing.T) {
	conv, _ := NewConversation("prod-1", "buyer", "seller")
	conv.ApplyAppend(&Message{ID: "m1", SenderID: "buyer", Content: "a", Seq: 1})
	conv.ApplyAppend(&Message{ID: "m2", SenderID: "buyer", Content: "b", Seq: 2})
	assert.Equal(t, 2, conv.UnreadCount["seller"])

	assert.NoError(t, conv.ResetUnread("seller"))
	assert.Equal(t, 0, conv.UnreadCount["seller"])

	// Idempotent
	assert.NoError(t, conv.ResetUnread("seller"))
	assert.Equal(t, 0, conv.UnreadCount["seller"])

	assert.Error(t, conv.ResetUnread("stranger"))
}

func TestOtherParticipant(t *testing.T) {
	conv, _ := NewConversation("prod-1", "buyer", "seller")
	assert.Equal(t, "seller", conv.OtherParticipant("buyer"))
	assert.Equal(t, "buyer", conv.OtherParticipant("seller"))
	assert.Equal(t, "", conv.OtherParticipant("stranger"))
}
