package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// DefaultChannelPrefix is prepended to a region handle to name its channel.
const DefaultChannelPrefix = "region:"

// Transport publishes envelopes on the channel of the destination region.
type Transport struct {
	client *goredis.Client
	prefix string
}

var _ ports.Transport = (*Transport)(nil)

// NewTransport creates a transport. An empty prefix selects the default.
func NewTransport(client *goredis.Client, prefix string) *Transport {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Transport{client: client, prefix: prefix}
}

// Channel returns the channel a region listens on.
func (t *Transport) Channel(handle domain.RegionHandle) string {
	return t.prefix + handle.String()
}

// Send publishes env. Redis reports how many subscribers received it; zero
// is not an error since delivery is best effort.
func (t *Transport) Send(ctx context.Context, handle domain.RegionHandle, env domain.Envelope) error {
	data, err := domain.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.client.Publish(ctx, t.Channel(handle), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", t.Channel(handle), err)
	}
	return nil
}
