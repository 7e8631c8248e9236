package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/region-sync/internal/core/ports"
)

const defaultReconnectDelay = time.Second

// Subscriber feeds envelopes published on the hosted regions' channels into
// the dispatch server.
type Subscriber struct {
	client         *goredis.Client
	receiver       ports.EnvelopeReceiver
	channels       []string
	logger         *slog.Logger
	reconnectDelay time.Duration
}

// NewSubscriber creates a subscriber for the given channels.
func NewSubscriber(client *goredis.Client, receiver ports.EnvelopeReceiver, channels []string, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:         client,
		receiver:       receiver,
		channels:       channels,
		logger:         logger.With("component", "redis_subscriber"),
		reconnectDelay: defaultReconnectDelay,
	}
}

// Run receives until ctx is cancelled, resubscribing whenever the pubsub
// channel closes.
func (s *Subscriber) Run(ctx context.Context) {
	if len(s.channels) == 0 {
		s.logger.Warn("no channels to subscribe to")
		return
	}

	for {
		s.receive(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("pubsub channel closed, reconnecting", "delay", s.reconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Subscriber) receive(ctx context.Context) {
	sub := s.client.Subscribe(ctx, s.channels...)
	defer sub.Close()

	s.logger.Info("subscribed", "channels", s.channels)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.receiver.HandleRaw(ctx, []byte(msg.Payload))
		}
	}
}
