// Package eventbus is the in-process publish/subscribe mechanism. Each event
// kind has its own strongly typed Topic; subscribers run synchronously on
// the publisher's goroutine in registration order.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

// Handler receives one event. It returns ok=false when it has no result to
// report; a returned error is logged and otherwise ignored.
type Handler[E, R any] func(ctx context.Context, event E) (result R, ok bool, err error)

type subscription[E, R any] struct {
	name    string
	handler Handler[E, R]
}

// Topic is one typed publish channel.
type Topic[E, R any] struct {
	name   string
	logger *slog.Logger

	mu   sync.RWMutex
	subs []subscription[E, R]
}

// NewTopic creates a topic for the named event.
func NewTopic[E, R any](name string, logger *slog.Logger) *Topic[E, R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Topic[E, R]{
		name:   name,
		logger: logger.With("component", "event_bus", "event", name),
	}
}

// Name returns the event name.
func (t *Topic[E, R]) Name() string {
	return t.name
}

// Subscribe registers h. Subscribers should be registered during startup,
// before any event traffic.
func (t *Topic[E, R]) Subscribe(name string, h Handler[E, R]) {
	if h == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, subscription[E, R]{name: name, handler: h})
}

// SubscriberCount returns the number of registered subscribers.
func (t *Topic[E, R]) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Publish invokes every subscriber with event and returns the last result a
// subscriber reported. With no subscribers, or none reporting, ok is false.
func (t *Topic[E, R]) Publish(ctx context.Context, event E) (result R, ok bool) {
	t.mu.RLock()
	subs := make([]subscription[E, R], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	if len(subs) == 0 {
		t.logger.DebugContext(ctx, "event published with no subscribers")
		return result, false
	}

	for _, sub := range subs {
		r, reported, err := t.invoke(ctx, sub, event)
		if err != nil {
			t.logger.WarnContext(ctx, "event subscriber failed",
				"subscriber", sub.name,
				"error", err,
			)
			continue
		}
		if reported {
			result, ok = r, true
		}
	}
	return result, ok
}

// invoke isolates one subscriber so a panic cannot reach the publisher.
func (t *Topic[E, R]) invoke(ctx context.Context, sub subscription[E, R], event E) (result R, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(t.logger, p)
			var zero R
			result, ok, err = zero, false, fmt.Errorf("subscriber panic: %v", p)
		}
	}()
	return sub.handler(ctx, event)
}

// Bus groups the topics this process publishes on.
type Bus struct {
	UserStatus     *Topic[domain.UserStatusChange, domain.FanOut]
	EstateSettings *Topic[domain.EstateSettingsChanged, domain.FanOut]
}

// New creates a bus with one topic per event kind.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		UserStatus:     NewTopic[domain.UserStatusChange, domain.FanOut](domain.EventUserStatusChange, logger),
		EstateSettings: NewTopic[domain.EstateSettingsChanged, domain.FanOut](domain.EventEstateUpdated, logger),
	}
}
