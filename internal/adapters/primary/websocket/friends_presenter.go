package websocket

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// FriendsPresenter keeps, per viewer, the last known online flag of each
// friend and pushes FRIEND_STATUS to the viewer's connections when a flag
// changes.
type FriendsPresenter struct {
	hub    *Hub
	logger *slog.Logger

	mu    sync.RWMutex
	views map[uuid.UUID]map[uuid.UUID]bool
}

var _ ports.FriendsPresenter = (*FriendsPresenter)(nil)

// NewFriendsPresenter creates a presenter pushing through hub. A viewer's
// cached view is dropped when their last connection closes.
func NewFriendsPresenter(hub *Hub, logger *slog.Logger) *FriendsPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FriendsPresenter{
		hub:    hub,
		logger: logger.With("component", "friends_presenter"),
		views:  make(map[uuid.UUID]map[uuid.UUID]bool),
	}
	if hub != nil {
		hub.setFriendsSource(p, p.Forget)
	}
	return p
}

// UpdateFriendStatus records friendID's flag in viewerID's view. Repeating
// the same status is a no-op.
func (p *FriendsPresenter) UpdateFriendStatus(ctx context.Context, viewerID, friendID uuid.UUID, online bool) {
	p.mu.Lock()
	view, ok := p.views[viewerID]
	if !ok {
		view = make(map[uuid.UUID]bool)
		p.views[viewerID] = view
	}
	prev, known := view[friendID]
	view[friendID] = online
	p.mu.Unlock()

	if known && prev == online {
		return
	}
	if p.hub == nil {
		return
	}

	delivered := p.hub.SendToUser(viewerID, domain.ViewerEvent{
		Type:    domain.ViewerFriendStatus,
		Payload: domain.FriendStatusPayload{FriendID: friendID.String(), Online: online},
	})
	p.logger.DebugContext(ctx, "friend status updated",
		"viewer_id", viewerID,
		"friend_id", friendID,
		"online", online,
		"connections", delivered,
	)
}

// Status returns the cached flag of friendID for viewerID.
func (p *FriendsPresenter) Status(viewerID, friendID uuid.UUID) (online, known bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	online, known = p.views[viewerID][friendID]
	return online, known
}

// Snapshot returns viewerID's view sorted by friend ID.
func (p *FriendsPresenter) Snapshot(viewerID uuid.UUID) []domain.FriendStatusPayload {
	p.mu.RLock()
	view := p.views[viewerID]
	out := make([]domain.FriendStatusPayload, 0, len(view))
	for friendID, online := range view {
		out = append(out, domain.FriendStatusPayload{FriendID: friendID.String(), Online: online})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FriendID < out[j].FriendID })
	return out
}

// Forget drops viewerID's view.
func (p *FriendsPresenter) Forget(viewerID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.views, viewerID)
}
