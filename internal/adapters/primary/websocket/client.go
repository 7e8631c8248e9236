package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorrc/region-sync/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBufferSize = 256
)

// Client message and reply types.
const (
	msgSubscribeRegion   = "SUBSCRIBE_TO_REGION"
	msgUnsubscribeRegion = "UNSUBSCRIBE_FROM_REGION"
	msgListFriends       = "LIST_FRIENDS"
	msgPing              = "PING"

	replyFriendList domain.ViewerEventType = "FRIEND_LIST"
	replyPong       domain.ViewerEventType = "PONG"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// Buffered channel of outbound events.
	Send chan domain.ViewerEvent

	UserID uuid.UUID

	// subscriptions holds the regions this client watches
	subscriptions map[uuid.UUID]bool

	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex

	logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan domain.ViewerEvent, sendBufferSize),
		UserID:        userID,
		subscriptions: make(map[uuid.UUID]bool),
		logger:        logger.With("user_id", userID.String()),
	}
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
	})
}

// enqueue queues an event without blocking. It reports false when the
// buffer is full or the client is closed.
func (c *Client) enqueue(event domain.ViewerEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- event:
		return true
	default:
		return false
	}
}

func (c *Client) AddSubscription(regionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[regionID] = true
}

func (c *Client) RemoveSubscription(regionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, regionID)
}

// HasSubscription checks if the client watches a region
func (c *Client) HasSubscription(regionID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[regionID]
}

// GetSubscriptions returns a copy of all subscriptions
func (c *Client) GetSubscriptions() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]uuid.UUID, 0, len(c.subscriptions))
	for regionID := range c.subscriptions {
		subs = append(subs, regionID)
	}
	return subs
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps events from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

func (c *Client) writeJSON(event domain.ViewerEvent) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := sonic.ConfigStd.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string `json:"type"`
	Payload struct {
		RegionID string `json:"regionId"`
	} `json:"payload"`
}

func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := sonic.ConfigStd.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case msgSubscribeRegion, msgUnsubscribeRegion:
		regionID, err := uuid.Parse(msg.Payload.RegionID)
		if err != nil {
			c.logger.Warn("invalid region ID in subscription request", "region_id", msg.Payload.RegionID)
			return
		}
		if msg.Type == msgSubscribeRegion {
			c.Hub.subscribeClientToRegion(c, regionID)
		} else {
			c.Hub.unsubscribeClientFromRegion(c, regionID)
		}

	case msgListFriends:
		c.enqueue(domain.ViewerEvent{Type: replyFriendList, Payload: c.Hub.friendsSnapshot(c.UserID)})

	case msgPing:
		c.enqueue(domain.ViewerEvent{Type: replyPong})

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}
