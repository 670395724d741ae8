package entity

import (
	"fmt"
	"time"
)

// LastMessage is a denormalized copy of the newest message in a conversation,
// kept in sync with the message log on every append.
type LastMessage struct {
	Content   string    `json:"content" firestore:"content"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	SenderID  string    `json:"sender_id" firestore:"senderId"`
}

// Conversation is a two-party message thread about a single product. The
// participant pair and the product are fixed at creation; only the message log,
// the lastMessage cache and the unread ledger change afterwards.
type Conversation struct {
	ID           string         `json:"id" firestore:"id"`
	Key          string         `json:"-" firestore:"key"`
	Participants []string       `json:"participants" firestore:"participants"`
	ProductID    string         `json:"product_id" firestore:"productId"`
	LastMessage  *LastMessage   `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCount  map[string]int `json:"unread_count" firestore:"unreadCount"`
	MessageSeq   int64          `json:"-" firestore:"messageSeq"`
	CreatedAt    time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time      `json:"updated_at" firestore:"updatedAt"`
}

// ConversationKey builds the lookup key for a (product, participant pair)
// combination. The pair is unordered: both argument orders yield the same key.
func ConversationKey(productID, userA, userB string) string {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%s#%s#%s", productID, lo, hi)
}

// NewConversation creates an empty conversation between two distinct users
// about a product, with the unread ledger initialized to zero for both.
func NewConversation(productID, userA, userB string) (*Conversation, error) {
	if productID == "" {
		return nil, fmt.Errorf("conversation requires a product")
	}
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("conversation requires two participants")
	}
	if userA == userB {
		return nil, fmt.Errorf("conversation participants must be distinct")
	}

	return &Conversation{
		Key:          ConversationKey(productID, userA, userB),
		Participants: []string{userA, userB},
		ProductID:    productID,
		UnreadCount:  map[string]int{userA: 0, userB: 0},
	}, nil
}

func (c *Conversation) IsParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of userID, or "" if userID is not a
// participant.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ApplyAppend folds a freshly appended message into the conversation: advances
// the sequence counter, refreshes lastMessage and increments the unread count
// of every participant except the sender. Callers persist the message and the
// updated conversation in the same atomic write.
func (c *Conversation) ApplyAppend(m *Message) error {
	if !c.IsParticipant(m.SenderID) {
		return fmt.Errorf("sender %s is not a participant", m.SenderID)
	}
	if m.Seq != c.MessageSeq+1 {
		return fmt.Errorf("message seq %d does not follow conversation seq %d", m.Seq, c.MessageSeq)
	}

	c.MessageSeq = m.Seq
	c.LastMessage = &LastMessage{
		Content:   m.Content,
		Timestamp: m.Timestamp,
		SenderID:  m.SenderID,
	}
	for _, p := range c.Participants {
		if p != m.SenderID {
			c.UnreadCount[p]++
		}
	}
	return c.CheckLedger()
}

// ResetUnread zeroes the unread count for userID. Idempotent.
func (c *Conversation) ResetUnread(userID string) error {
	if !c.IsParticipant(userID) {
		return fmt.Errorf("user %s is not a participant", userID)
	}
	c.UnreadCount[userID] = 0
	return c.CheckLedger()
}

// CheckLedger verifies the structural invariants: exactly two distinct
// participants, one non-negative unread entry per participant and no entries
// for strangers. Run after every mutation.
func (c *Conversation) CheckLedger() error {
	if len(c.Participants) != 2 || c.Participants[0] == c.Participants[1] {
		return fmt.Errorf("conversation must have exactly two distinct participants, got %v", c.Participants)
	}
	if len(c.UnreadCount) != len(c.Participants) {
		return fmt.Errorf("unread ledger has %d entries for %d participants", len(c.UnreadCount), len(c.Participants))
	}
	for _, p := range c.Participants {
		n, ok := c.UnreadCount[p]
		if !ok {
			return fmt.Errorf("unread ledger missing entry for participant %s", p)
		}
		if n < 0 {
			return fmt.Errorf("unread count for %s is negative", p)
		}
	}
	return nil
}
