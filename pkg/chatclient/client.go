// Package chatclient is the Go client for the chat realtime channel. It keeps
// one websocket session per signed-in user, republishes inbound events to the
// application, and maintains the local notification list and unread badge.
package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campusmarket/internal/domain/entity"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/pkg/logger"
)

// Client mirrors the server's topic model from the consumer side: one user
// channel joined for the whole session, plus the conversation channel of
// whichever chat view is currently open.
type Client struct {
	mu            sync.Mutex
	conn          *websocket.Conn
	userID        string
	notifications []entity.Notification
	unread        int
	done          chan struct{}

	// OnMessage, when set before Connect, receives every new-message event.
	OnMessage func(entity.Message)
}

func New() *Client {
	return &Client{}
}

// Connect dials the gateway, authenticates with the bearer token, and joins
// the user's personal channel. Calling it on a live client replaces the
// session.
func (c *Client) Connect(ctx context.Context, url, token, userID string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		// Retire the superseded read loop before its connection drops, so
		// the replacement is not logged as a read failure.
		close(c.done)
		c.conn.Close()
	}
	c.conn = conn
	c.userID = userID
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	if err := c.emit(ws.EventJoinUser, userID); err != nil {
		c.Close()
		return err
	}

	go c.readLoop(conn, done)
	return nil
}

// Close drops the connection. Local notifications and the unread counter
// survive; the next fetch reconciles them.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	close(c.done)
	c.conn.Close()
	c.conn = nil
}

// Connected reports whether a session is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// JoinChat subscribes to a conversation channel. No-op when disconnected.
func (c *Client) JoinChat(conversationID string) {
	c.emit(ws.EventJoinChat, conversationID)
}

// LeaveChat drops the conversation channel subscription.
func (c *Client) LeaveChat(conversationID string) {
	c.emit(ws.EventLeaveChat, conversationID)
}

// SendMessage republishes an already-persisted message to the conversation
// channel. Persistence happens over HTTP first; this is display fan-out only.
func (c *Client) SendMessage(conversationID string, message entity.Message) {
	c.emit(ws.EventSendMessage, ws.SendMessagePayload{
		ConversationID: conversationID,
		Message:        message,
	})
}

// SendNotification pushes a notification onto another user's personal channel.
func (c *Client) SendNotification(userID string, notification entity.Notification) {
	c.emit(ws.EventSendNotification, ws.SendNotificationPayload{
		UserID:       userID,
		Notification: notification,
	})
}

// Notifications returns a snapshot of the local notification list, newest
// first.
func (c *Client) Notifications() []entity.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// UnreadCount returns the locally tracked unread badge value.
func (c *Client) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// Reconcile overwrites the local unread counter with the store's total. Called
// after every unread-count fetch; the local increments are optimistic only.
func (c *Client) Reconcile(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread = total
}

// MarkNotificationRead flags one notification without removing it and takes
// it off the unread badge.
func (c *Client) MarkNotificationRead(notificationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notifications {
		if c.notifications[i].ID == notificationID {
			if !c.notifications[i].Read {
				c.notifications[i].Read = true
				if c.unread > 0 {
					c.unread--
				}
			}
			return
		}
	}
}

// ClearNotifications empties the local list and zeroes the badge.
func (c *Client) ClearNotifications() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = nil
	c.unread = 0
}

func (c *Client) emit(event string, payload interface{}) error {
	frame, err := ws.MarshalEvent(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				logger.Warn("Chat session read error: %v", err)
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []byte) {
	var event ws.Event
	if err := json.Unmarshal(frame, &event); err != nil {
		logger.Warn("Malformed event from gateway: %v", err)
		return
	}

	switch event.Event {
	case ws.EventNewMessage:
		var message entity.Message
		if err := json.Unmarshal(event.Data, &message); err != nil {
			return
		}

		// A message counts toward the badge like a notification does; the
		// next unread-count fetch reconciles any overlap with the sender's
		// notification fan-out.
		notification := entity.Notification{
			ID:             uuid.New().String(),
			Type:           "message",
			Title:          "New Message",
			Body:           message.Content,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			Timestamp:      message.Timestamp,
		}

		c.mu.Lock()
		c.notifications = append([]entity.Notification{notification}, c.notifications...)
		c.unread++
		handler := c.OnMessage
		c.mu.Unlock()

		if handler != nil {
			handler(message)
		}

	case ws.EventNewNotification:
		var notification entity.Notification
		if err := json.Unmarshal(event.Data, &notification); err != nil {
			return
		}
		c.mu.Lock()
		c.notifications = append([]entity.Notification{notification}, c.notifications...)
		c.unread++
		c.mu.Unlock()
	}
}
