package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campusmarket/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024
)

// Client is one live connection belonging to an authenticated user. A user may
// hold several connections (tabs, devices); each subscribes independently.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	topics map[string]struct{} // guarded by the manager mutex
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		topics: make(map[string]struct{}),
	}
}

// Authorizer answers whether a user may subscribe to a conversation topic.
type Authorizer interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Manager is the publish/subscribe hub: a set of named topics, each holding
// the connections subscribed to it. It is pure fan-out; nothing here is
// persisted, and a dropped connection loses all its memberships.
type Manager struct {
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client

	authorizer Authorizer
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// SetAuthorizer wires the participant check used for conversation topics.
// Must be called before clients connect.
func (m *Manager) SetAuthorizer(a Authorizer) {
	m.authorizer = a
}

// Start runs the registration loop in a goroutine until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client] = struct{}{}
				m.mutex.Unlock()
				logger.Info("Client connected: %s", client.UserID)

			case client := <-m.Unregister:
				m.removeClient(client)
				logger.Info("Client disconnected: %s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

// removeClient discards every topic membership of the connection and closes
// its send channel.
func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	for topic := range client.topics {
		m.dropFromTopic(topic, client)
	}
	close(client.Send)
}

func (m *Manager) dropFromTopic(topic string, client *Client) {
	subscribers, ok := m.topics[topic]
	if !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(m.topics, topic)
	}
	delete(client.topics, topic)
}

func (m *Manager) Subscribe(client *Client, topic string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	subscribers, ok := m.topics[topic]
	if !ok {
		subscribers = make(map[*Client]struct{})
		m.topics[topic] = subscribers
	}
	subscribers[client] = struct{}{}
	client.topics[topic] = struct{}{}
}

func (m *Manager) Unsubscribe(client *Client, topic string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropFromTopic(topic, client)
}

// Broadcast sends payload to every subscriber of topic except the given
// connection. Clients whose send buffer is full are dropped rather than
// blocking the hub.
func (m *Manager) Broadcast(topic string, payload []byte, except *Client) {
	m.mutex.RLock()
	var stalled []*Client
	for client := range m.topics[topic] {
		if client == except {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range stalled {
		logger.Warn("Client %s send buffer full, dropping connection", client.UserID)
		m.removeClient(client)
	}
}

// SendToUser publishes to the user's personal topic.
func (m *Manager) SendToUser(userID string, payload []byte) {
	m.Broadcast(UserTopic(userID), payload, nil)
}

// SendToConversation publishes to a conversation topic, skipping every
// connection of exceptUserID. Used by the HTTP path, where the sender has no
// connection handle.
func (m *Manager) SendToConversation(conversationID string, payload []byte, exceptUserID string) {
	topic := ConversationTopic(conversationID)

	m.mutex.RLock()
	var stalled []*Client
	for client := range m.topics[topic] {
		if client.UserID == exceptUserID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	m.mutex.RUnlock()

	for _, client := range stalled {
		logger.Warn("Client %s send buffer full, dropping connection", client.UserID)
		m.removeClient(client)
	}
}

// ReadPump reads events from the connection and dispatches them until the
// connection drops, then unregisters the client.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Read error from client %s: %v", c.UserID, err)
			}
			break
		}
		m.HandleClientEvent(c, payload)
	}
}

// WritePump drains the send channel to the connection and keeps it alive with
// periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
