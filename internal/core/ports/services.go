package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
)

// Scene is one region simulated by this process.
type Scene interface {
	RegionID() uuid.UUID
	Handle() domain.RegionHandle
	EstateID() uint32
	EstateSettings() *domain.EstateSettings
	ReplaceEstateSettings(settings *domain.EstateSettings)
}

// SceneSet looks up the scenes hosted by this process.
// FindSceneByRegionID returns nil when the region is not hosted here.
type SceneSet interface {
	FindSceneByRegionID(regionID uuid.UUID) Scene
	FindSceneByHandle(handle domain.RegionHandle) Scene
	Scenes() []Scene
}

// Transport delivers one envelope to one region. Implementations own their
// timeouts; the dispatch client bounds each call with ctx.
type Transport interface {
	Send(ctx context.Context, handle domain.RegionHandle, env domain.Envelope) error
}

// DispatchPoster is the fire-and-forget send primitive used by domain
// handlers. Post never blocks on the network and never reports failure.
type DispatchPoster interface {
	Post(handle domain.RegionHandle, env domain.Envelope) bool
}

// EnvelopeDecoder is offered every inbound envelope. It returns true only
// when it recognized and applied the envelope.
type EnvelopeDecoder interface {
	OnEnvelope(ctx context.Context, env domain.Envelope) bool
}

// EnvelopeReceiver is the single inbound entry point registered with the
// transport receive path.
type EnvelopeReceiver interface {
	OnEnvelope(ctx context.Context, env domain.Envelope) bool
	HandleRaw(ctx context.Context, data []byte) bool
}

// FriendsPresenter owns the client-facing view of friend presence.
type FriendsPresenter interface {
	UpdateFriendStatus(ctx context.Context, viewerID, friendID uuid.UUID, online bool)
}

// EventBroadcaster pushes events to connected clients.
type EventBroadcaster interface {
	Broadcast(event domain.ViewerEvent) error
}

// UpdateEstateSettingsParams defines the input for an administrative edit.
type UpdateEstateSettingsParams struct {
	EstateID uint32
	Settings domain.EstateSettings
}

// SetPresenceParams defines the input for a login or logout.
type SetPresenceParams struct {
	UserID   uuid.UUID
	RegionID uuid.UUID
	Online   bool
}

// PresenceService records logins and logouts and raises UserStatusChange.
type PresenceService interface {
	SetStatus(ctx context.Context, params SetPresenceParams) (domain.FanOut, error)
}

// EstateService saves estate edits and raises EstateUpdated.
type EstateService interface {
	UpdateSettings(ctx context.Context, params UpdateEstateSettingsParams) (*domain.EstateSettings, domain.FanOut, error)
	GetSettings(ctx context.Context, regionID uuid.UUID) (*domain.EstateSettings, error)
}
