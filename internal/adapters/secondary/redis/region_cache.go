package redis

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// RegionCache fronts a RegionDirectory with Redis. Friend fan-out resolves
// one region per online friend, so the same few regions are looked up often.
type RegionCache struct {
	base  ports.RegionDirectory
	redis *goredis.Client
	ttl   time.Duration
}

var _ ports.RegionDirectory = (*RegionCache)(nil)

// NewRegionCache wraps base. A nil client or zero ttl disables caching.
func NewRegionCache(base ports.RegionDirectory, client *goredis.Client, ttl time.Duration) *RegionCache {
	if base == nil {
		panic("redis.NewRegionCache: base directory is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RegionCache{base: base, redis: client, ttl: ttl}
}

type cachedRegion struct {
	RegionID uuid.UUID `json:"regionId"`
	Handle   uint64    `json:"handle"`
	Name     string    `json:"name"`
	EstateID uint32    `json:"estateId"`
}

// GetRegionByID returns the cached entry or asks the backing directory.
func (c *RegionCache) GetRegionByID(ctx context.Context, regionID uuid.UUID) (*domain.RegionInfo, error) {
	if info, ok := c.load(ctx, regionID); ok {
		return info, nil
	}

	info, err := c.base.GetRegionByID(ctx, regionID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, info)
	return info, nil
}

// Evict drops a region from the cache.
func (c *RegionCache) Evict(ctx context.Context, regionID uuid.UUID) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, regionCacheKey(regionID)).Err()
}

func (c *RegionCache) load(ctx context.Context, regionID uuid.UUID) (*domain.RegionInfo, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, regionCacheKey(regionID)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			_ = c.redis.Del(ctx, regionCacheKey(regionID)).Err()
		}
		return nil, false
	}
	var cr cachedRegion
	if err := sonic.Unmarshal(data, &cr); err != nil {
		_ = c.redis.Del(ctx, regionCacheKey(regionID)).Err()
		return nil, false
	}
	return &domain.RegionInfo{
		RegionID: cr.RegionID,
		Handle:   domain.RegionHandle(cr.Handle),
		Name:     cr.Name,
		EstateID: cr.EstateID,
	}, true
}

func (c *RegionCache) store(ctx context.Context, info *domain.RegionInfo) {
	if c.redis == nil || c.ttl == 0 || info == nil {
		return
	}
	data, err := sonic.Marshal(cachedRegion{
		RegionID: info.RegionID,
		Handle:   uint64(info.Handle),
		Name:     info.Name,
		EstateID: info.EstateID,
	})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, regionCacheKey(info.RegionID), data, c.ttl).Err()
}

func regionCacheKey(regionID uuid.UUID) string {
	return "region-info:" + regionID.String()
}
