package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// Hub maintains the set of connected viewers and routes events to them.
type Hub struct {
	// clients maps user IDs to their active connections. A single user can
	// have several (multiple viewers or devices).
	clients map[uuid.UUID]map[*Client]bool

	// rooms maps region IDs to the clients watching that region
	rooms map[uuid.UUID]map[*Client]bool

	broadcast chan domain.ViewerEvent

	Register   chan *Client
	Unregister chan *Client

	// onDisconnect is called when a user's last connection goes away
	onDisconnect func(userID uuid.UUID)
	friends      friendsSource

	mu     sync.RWMutex
	logger *slog.Logger
}

// friendsSource answers a client's request for its friend list.
type friendsSource interface {
	Snapshot(viewerID uuid.UUID) []domain.FriendStatusPayload
}

var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan domain.ViewerEvent, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for the clients watching event.RegionID.
func (h *Hub) Broadcast(event domain.ViewerEvent) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"region_id", event.RegionID,
		)
	}
	return nil
}

// Run starts the hub's event loop and returns when ctx is cancelled,
// closing every connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"total_connections", len(h.clients[client.UserID]),
	)
}

// unregisterClient removes a client from the hub and all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	lastConnection := false
	if userClients, ok := h.clients[client.UserID]; ok {
		if _, exists := userClients[client]; exists {
			delete(userClients, client)
			if len(userClients) == 0 {
				delete(h.clients, client.UserID)
				lastConnection = true
			}
		}
	}

	for _, regionID := range client.GetSubscriptions() {
		if room, ok := h.rooms[regionID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, regionID)
			}
		}
	}
	client.CloseSend()
	onDisconnect := h.onDisconnect
	h.mu.Unlock()

	h.logger.Info("client unregistered", "user_id", client.UserID)
	if lastConnection && onDisconnect != nil {
		onDisconnect(client.UserID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userClients := range h.clients {
		for client := range userClients {
			client.CloseSend()
		}
	}
	h.clients = make(map[uuid.UUID]map[*Client]bool)
	h.rooms = make(map[uuid.UUID]map[*Client]bool)
}

// broadcastEvent sends an event to every client in the region's room
func (h *Hub) broadcastEvent(event domain.ViewerEvent) {
	h.mu.RLock()
	room, ok := h.rooms[event.RegionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"region_id", event.RegionID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.enqueue(event) {
			h.logger.Warn("client send buffer full, unregistering", "user_id", client.UserID)
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) subscribeClientToRegion(client *Client, regionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[regionID] == nil {
		h.rooms[regionID] = make(map[*Client]bool)
	}
	h.rooms[regionID][client] = true
	client.AddSubscription(regionID)

	h.logger.Debug("client subscribed to region",
		"user_id", client.UserID,
		"region_id", regionID,
	)
}

func (h *Hub) unsubscribeClientFromRegion(client *Client, regionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[regionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, regionID)
		}
	}
	client.RemoveSubscription(regionID)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, userClients := range h.clients {
		count += len(userClients)
	}
	return count
}

// GetClientsInRoom returns the number of clients watching a region
func (h *Hub) GetClientsInRoom(regionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[regionID])
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendToUser sends an event to every connection of userID. Connections with
// a full buffer miss it.
func (h *Hub) SendToUser(userID uuid.UUID, event domain.ViewerEvent) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		if client.enqueue(event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) setFriendsSource(src friendsSource, onDisconnect func(uuid.UUID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.friends = src
	h.onDisconnect = onDisconnect
}

func (h *Hub) friendsSnapshot(userID uuid.UUID) []domain.FriendStatusPayload {
	h.mu.RLock()
	src := h.friends
	h.mu.RUnlock()
	if src == nil {
		return nil
	}
	return src.Snapshot(userID)
}
