package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
)

// FriendsDirectory lists a user's friends.
type FriendsDirectory interface {
	GetFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friend, error)
}

// PresenceDirectory tracks which region hosts each online user as root.
// GetPresence returns nil, nil for a user without an active session.
type PresenceDirectory interface {
	GetPresence(ctx context.Context, userID uuid.UUID) (*domain.Presence, error)
	SetPresence(ctx context.Context, presence domain.Presence) error
	ClearPresence(ctx context.Context, userID uuid.UUID) error
}

// RegionDirectory maps region IDs to transport handles.
// GetRegionByID returns ErrRegionNotFound for an unknown region.
type RegionDirectory interface {
	GetRegionByID(ctx context.Context, regionID uuid.UUID) (*domain.RegionInfo, error)
}

// EstateDirectory is the authoritative store for estate membership and
// settings.
type EstateDirectory interface {
	GetRegionsForEstate(ctx context.Context, estateID uint32) ([]uuid.UUID, error)
	LoadEstateSettings(ctx context.Context, regionID uuid.UUID) (*domain.EstateSettings, error)
	SaveEstateSettings(ctx context.Context, settings domain.EstateSettings) (*domain.EstateSettings, error)
}
