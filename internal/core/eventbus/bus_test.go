package eventbus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/eventbus"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

func TestTopic_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("no subscribers returns no result", func(t *testing.T) {
		topic := eventbus.NewTopic[string, int]("Nobody", logging.Discard())

		result, ok := topic.Publish(ctx, "hello")

		assert.False(t, ok)
		assert.Zero(t, result)
	})

	t.Run("subscribers run in registration order", func(t *testing.T) {
		topic := eventbus.NewTopic[string, int]("Ordered", logging.Discard())
		var calls []string
		topic.Subscribe("first", func(ctx context.Context, ev string) (int, bool, error) {
			calls = append(calls, "first:"+ev)
			return 1, true, nil
		})
		topic.Subscribe("second", func(ctx context.Context, ev string) (int, bool, error) {
			calls = append(calls, "second:"+ev)
			return 2, true, nil
		})

		result, ok := topic.Publish(ctx, "x")

		require.True(t, ok)
		assert.Equal(t, 2, result)
		assert.Equal(t, []string{"first:x", "second:x"}, calls)
	})

	t.Run("last reported result wins over later silence", func(t *testing.T) {
		topic := eventbus.NewTopic[string, int]("Silent", logging.Discard())
		topic.Subscribe("reports", func(ctx context.Context, ev string) (int, bool, error) {
			return 7, true, nil
		})
		topic.Subscribe("silent", func(ctx context.Context, ev string) (int, bool, error) {
			return 0, false, nil
		})

		result, ok := topic.Publish(ctx, "x")

		require.True(t, ok)
		assert.Equal(t, 7, result)
	})

	t.Run("all silent returns no result", func(t *testing.T) {
		topic := eventbus.NewTopic[string, int]("AllSilent", logging.Discard())
		topic.Subscribe("silent", func(ctx context.Context, ev string) (int, bool, error) {
			return 0, false, nil
		})

		_, ok := topic.Publish(ctx, "x")

		assert.False(t, ok)
	})

	t.Run("failing subscriber does not stop the others", func(t *testing.T) {
		topic := eventbus.NewTopic[string, int]("Failing", logging.Discard())
		ran := false
		topic.Subscribe("errors", func(ctx context.Context, ev string) (int, bool, error) {
			return 0, false, errors.New("boom")
		})
		topic.Subscribe("panics", func(ctx context.Context, ev string) (int, bool, error) {
			panic("subscriber exploded")
		})
		topic.Subscribe("survivor", func(ctx context.Context, ev string) (int, bool, error) {
			ran = true
			return 3, true, nil
		})

		result, ok := topic.Publish(ctx, "x")

		assert.True(t, ran)
		require.True(t, ok)
		assert.Equal(t, 3, result)
	})

	t.Run("nil handler is ignored", func(t *testing.T) {
		topic := eventbus.NewTopic[string, int]("Nil", logging.Discard())
		topic.Subscribe("nil", nil)

		assert.Equal(t, 0, topic.SubscriberCount())
	})
}

func TestBus_Topics(t *testing.T) {
	bus := eventbus.New(logging.Discard())

	assert.Equal(t, domain.EventUserStatusChange, bus.UserStatus.Name())
	assert.Equal(t, domain.EventEstateUpdated, bus.EstateSettings.Name())

	var seen domain.UserStatusChange
	bus.UserStatus.Subscribe("capture", func(ctx context.Context, ev domain.UserStatusChange) (domain.FanOut, bool, error) {
		seen = ev
		return domain.FanOut{Attempted: 1, Posted: 1}, true, nil
	})

	ev := domain.UserStatusChange{UserID: uuid.New(), Online: true, RegionID: uuid.New()}
	result, ok := bus.UserStatus.Publish(context.Background(), ev)

	require.True(t, ok)
	assert.Equal(t, ev, seen)
	assert.Equal(t, domain.FanOut{Attempted: 1, Posted: 1}, result)

	_, ok = bus.EstateSettings.Publish(context.Background(), domain.EstateSettingsChanged{EstateID: 1})
	assert.False(t, ok)
}
