package websocket

import (
	"context"
	"encoding/json"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/logger"
)

// Event names are the wire contract shared with every client.
const (
	EventJoinUser         = "join-user"
	EventJoinChat         = "join-chat"
	EventLeaveChat        = "leave-chat"
	EventSendMessage      = "send-message"
	EventSendNotification = "send-notification"
	EventNewMessage       = "new-message"
	EventNewNotification  = "new-notification"
)

// Event is the frame every payload travels in, both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SendMessagePayload struct {
	ConversationID string         `json:"conversation_id"`
	Message        entity.Message `json:"message"`
}

type SendNotificationPayload struct {
	UserID       string              `json:"user_id"`
	Notification entity.Notification `json:"notification"`
}

// MarshalEvent frames a payload for the wire.
func MarshalEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: data})
}

// UserTopic names the personal channel every client joins on connect.
func UserTopic(userID string) string {
	return "user:" + userID
}

// ConversationTopic names the channel a client joins while a conversation's
// detail view is open.
func ConversationTopic(conversationID string) string {
	return "chat:" + conversationID
}

// HandleClientEvent dispatches one inbound frame. Events carry no error
// channel: malformed or unauthorized events are logged and dropped, never
// answered.
func (m *Manager) HandleClientEvent(client *Client, payload []byte) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Warn("Malformed event from client %s: %v", client.UserID, err)
		return
	}

	switch event.Event {
	case EventJoinUser:
		// The subscription always targets the authenticated identity; a
		// client cannot join another user's channel by naming it.
		m.Subscribe(client, UserTopic(client.UserID))

	case EventJoinChat:
		var conversationID string
		if err := json.Unmarshal(event.Data, &conversationID); err != nil || conversationID == "" {
			return
		}
		if !m.authorized(conversationID, client.UserID) {
			logger.Warn("Client %s denied subscription to conversation %s", client.UserID, conversationID)
			return
		}
		m.Subscribe(client, ConversationTopic(conversationID))

	case EventLeaveChat:
		var conversationID string
		if err := json.Unmarshal(event.Data, &conversationID); err != nil || conversationID == "" {
			return
		}
		m.Unsubscribe(client, ConversationTopic(conversationID))

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		if !m.authorized(p.ConversationID, client.UserID) {
			return
		}
		out, err := MarshalEvent(EventNewMessage, p.Message)
		if err != nil {
			return
		}
		m.Broadcast(ConversationTopic(p.ConversationID), out, client)

	case EventSendNotification:
		var p SendNotificationPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.UserID == "" {
			return
		}
		out, err := MarshalEvent(EventNewNotification, p.Notification)
		if err != nil {
			return
		}
		m.Broadcast(UserTopic(p.UserID), out, client)

	default:
		logger.Warn("Unknown event %q from client %s", event.Event, client.UserID)
	}
}

func (m *Manager) authorized(conversationID, userID string) bool {
	if m.authorizer == nil {
		return false
	}
	ok, err := m.authorizer.IsParticipant(context.Background(), conversationID, userID)
	if err != nil {
		logger.Warn("Participant check failed for conversation %s: %v", conversationID, err)
		return false
	}
	return ok
}
