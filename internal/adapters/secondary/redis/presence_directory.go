package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

const (
	fieldRootRegion = "root_region"
	fieldUpdatedAt  = "updated_at"
)

// PresenceDirectory stores one hash per online user. The key expires after
// ttl so a region that dies without logging its users out stops advertising
// them.
type PresenceDirectory struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ ports.PresenceDirectory = (*PresenceDirectory)(nil)

// NewPresenceDirectory creates a presence directory. A zero ttl keeps
// entries until they are cleared.
func NewPresenceDirectory(client *goredis.Client, ttl time.Duration) *PresenceDirectory {
	return &PresenceDirectory{client: client, ttl: ttl}
}

// GetPresence returns the user's presence, or nil when offline.
func (d *PresenceDirectory) GetPresence(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	root, err := d.client.HGet(ctx, presenceKey(userID), fieldRootRegion).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}

	regionID, err := uuid.Parse(root)
	if err != nil {
		// A corrupt entry reads as offline.
		return nil, nil
	}
	return &domain.Presence{UserID: userID, RootRegionID: regionID, Online: true}, nil
}

// SetPresence records the user as online in p.RootRegionID.
func (d *PresenceDirectory) SetPresence(ctx context.Context, p domain.Presence) error {
	if !p.Online {
		return d.ClearPresence(ctx, p.UserID)
	}
	key := presenceKey(p.UserID)
	_, err := d.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldRootRegion, p.RootRegionID.String(),
			fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339),
		)
		if d.ttl > 0 {
			pipe.Expire(ctx, key, d.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// ClearPresence removes the user's entry.
func (d *PresenceDirectory) ClearPresence(ctx context.Context, userID uuid.UUID) error {
	if err := d.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}
