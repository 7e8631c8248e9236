package services

import (
	"context"
	"fmt"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/eventbus"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// PresenceService records logins and logouts and raises UserStatusChange.
type PresenceService struct {
	presence ports.PresenceDirectory
	topic    *eventbus.Topic[domain.UserStatusChange, domain.FanOut]
}

var _ ports.PresenceService = (*PresenceService)(nil)

// NewPresenceService creates a new presence service
func NewPresenceService(
	presence ports.PresenceDirectory,
	topic *eventbus.Topic[domain.UserStatusChange, domain.FanOut],
) ports.PresenceService {
	return &PresenceService{
		presence: presence,
		topic:    topic,
	}
}

// SetStatus stores the new presence and publishes the transition.
func (s *PresenceService) SetStatus(ctx context.Context, params ports.SetPresenceParams) (domain.FanOut, error) {
	// 1. Validate
	ev := domain.UserStatusChange{
		UserID:   params.UserID,
		Online:   params.Online,
		RegionID: params.RegionID,
	}
	if err := ev.Validate(); err != nil {
		return domain.FanOut{}, err
	}

	// 2. Persist presence before anyone is told about it
	if s.presence != nil {
		var err error
		if params.Online {
			err = s.presence.SetPresence(ctx, domain.Presence{
				UserID:       params.UserID,
				RootRegionID: params.RegionID,
				Online:       true,
			})
		} else {
			err = s.presence.ClearPresence(ctx, params.UserID)
		}
		if err != nil {
			return domain.FanOut{}, fmt.Errorf("update presence: %w", err)
		}
	}

	// 3. Publish
	if s.topic == nil {
		return domain.FanOut{}, nil
	}
	out, _ := s.topic.Publish(ctx, ev)
	return out, nil
}
