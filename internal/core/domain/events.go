package domain

import (
	"github.com/google/uuid"

	apperrors "github.com/lorrc/region-sync/internal/core/errors"
)

// Local event names. Other modules raise these on the event bus to trigger
// propagation to remote regions.
const (
	EventUserStatusChange = "UserStatusChange"
	EventEstateUpdated    = "EstateUpdated"
)

// UserStatusChange is raised once per login or logout transition.
type UserStatusChange struct {
	UserID   uuid.UUID
	Online   bool
	RegionID uuid.UUID // region the user is connected through
}

// Validate checks the event carries the identifiers propagation needs.
// A logout may arrive without a region.
func (e UserStatusChange) Validate() error {
	if e.UserID == uuid.Nil {
		return apperrors.ErrUserIDRequired
	}
	if e.Online && e.RegionID == uuid.Nil {
		return apperrors.ErrRegionIDRequired
	}
	return nil
}

// EstateSettingsChanged is raised once per administrative settings edit.
type EstateSettingsChanged struct {
	EstateID uint32
	Settings EstateSettings
}

// Validate checks the event names an estate.
func (e EstateSettingsChanged) Validate() error {
	if e.EstateID == 0 {
		return apperrors.ErrEstateIDRequired
	}
	return nil
}

// FanOut summarizes one propagation pass: how many destinations were
// resolved and how many envelopes were accepted for delivery.
type FanOut struct {
	Attempted int
	Posted    int
}

// Add folds another pass into f.
func (f FanOut) Add(other FanOut) FanOut {
	return FanOut{
		Attempted: f.Attempted + other.Attempted,
		Posted:    f.Posted + other.Posted,
	}
}

// ViewerEventType defines the type of event pushed to connected clients.
type ViewerEventType string

const (
	ViewerFriendStatus   ViewerEventType = "FRIEND_STATUS"
	ViewerEstateSettings ViewerEventType = "ESTATE_SETTINGS"
)

// ViewerEvent is the payload sent over WebSocket to a connected client.
type ViewerEvent struct {
	Type     ViewerEventType `json:"type"`
	Payload  interface{}     `json:"payload"`
	RegionID uuid.UUID       `json:"regionId"` // Used for routing to region rooms
}

// FriendStatusPayload tells a viewer one friend's online flag.
type FriendStatusPayload struct {
	FriendID string `json:"friendId"`
	Online   bool   `json:"online"`
}

// EstateSettingsPayload is pushed to clients of a region whose estate
// settings were reloaded.
type EstateSettingsPayload struct {
	EstateID     uint32 `json:"estateId"`
	EstateName   string `json:"estateName"`
	PublicAccess bool   `json:"publicAccess"`
}
