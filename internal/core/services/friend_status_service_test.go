package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/eventbus"
	"github.com/lorrc/region-sync/internal/core/mocks"
	"github.com/lorrc/region-sync/internal/core/scene"
	"github.com/lorrc/region-sync/internal/core/services"
	"github.com/lorrc/region-sync/internal/infrastructure/logging"
)

type friendFixture struct {
	friends   *mocks.MockFriendsDirectory
	presence  *mocks.MockPresenceDirectory
	regions   *mocks.MockRegionDirectory
	presenter *mocks.MockFriendsPresenter
	poster    *mocks.RecordingPoster
	scenes    *scene.Set
	svc       *services.FriendStatusService
}

func newFriendFixture() *friendFixture {
	f := &friendFixture{
		friends:   mocks.NewMockFriendsDirectory(),
		presence:  mocks.NewMockPresenceDirectory(),
		regions:   mocks.NewMockRegionDirectory(),
		presenter: mocks.NewMockFriendsPresenter(),
		poster:    mocks.NewRecordingPoster(),
		scenes:    scene.NewSet(),
	}
	f.svc = services.NewFriendStatusService(f.friends, f.presence, f.regions, f.scenes, f.presenter, f.poster, logging.Discard())
	return f
}

func TestFriendStatusService_Login(t *testing.T) {
	ctx := context.Background()
	userA, userB, userC := uuid.New(), uuid.New(), uuid.New()
	r1 := &domain.RegionInfo{RegionID: uuid.New(), Handle: 1001}
	home := &domain.RegionInfo{RegionID: uuid.New(), Handle: 2002}

	f := newFriendFixture()
	f.friends.On("GetFriends", ctx, userA).Return([]domain.Friend{{FriendID: userB}, {FriendID: userC}}, nil)
	f.presence.On("GetPresence", ctx, userB).Return(&domain.Presence{UserID: userB, RootRegionID: r1.RegionID, Online: true}, nil)
	f.presence.On("GetPresence", ctx, userC).Return(nil, nil)
	f.regions.On("GetRegionByID", ctx, r1.RegionID).Return(r1, nil)
	f.regions.On("GetRegionByID", ctx, home.RegionID).Return(home, nil)

	out, ok, err := f.svc.HandleStatusChange(ctx, domain.UserStatusChange{UserID: userA, Online: true, RegionID: home.RegionID})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.FanOut{Attempted: 2, Posted: 2}, out)

	posts := f.poster.Posts()
	require.Len(t, posts, 2)

	assert.Equal(t, r1.Handle, posts[0].Handle)
	assert.Equal(t, domain.MethodAgentStatusChange, posts[0].Envelope.Method())
	subject, _ := posts[0].Envelope.UUID(domain.KeySubject)
	informed, _ := posts[0].Envelope.UUID(domain.KeyFriendToInform)
	status, _ := posts[0].Envelope.Bool(domain.KeyNewStatus)
	assert.Equal(t, userA, subject)
	assert.Equal(t, userB, informed)
	assert.True(t, status)

	assert.Equal(t, home.Handle, posts[1].Handle)
	subject, _ = posts[1].Envelope.UUID(domain.KeySubject)
	informed, _ = posts[1].Envelope.UUID(domain.KeyFriendToInform)
	assert.Equal(t, userB, subject, "only the online friend is reported back")
	assert.Equal(t, userA, informed)

	f.friends.AssertExpectations(t)
	f.presence.AssertExpectations(t)
	f.regions.AssertExpectations(t)
}

func TestFriendStatusService_Logout(t *testing.T) {
	ctx := context.Background()
	userA, userB := uuid.New(), uuid.New()
	r1 := &domain.RegionInfo{RegionID: uuid.New(), Handle: 1001}

	f := newFriendFixture()
	f.friends.On("GetFriends", ctx, userA).Return([]domain.Friend{{FriendID: userB}}, nil)
	f.presence.On("GetPresence", ctx, userB).Return(&domain.Presence{UserID: userB, RootRegionID: r1.RegionID, Online: true}, nil)
	f.regions.On("GetRegionByID", ctx, r1.RegionID).Return(r1, nil)

	out, _, err := f.svc.HandleStatusChange(ctx, domain.UserStatusChange{UserID: userA, Online: false})

	require.NoError(t, err)
	assert.Equal(t, domain.FanOut{Attempted: 1, Posted: 1}, out)
	posts := f.poster.Posts()
	require.Len(t, posts, 1)
	status, ok := posts[0].Envelope.Bool(domain.KeyNewStatus)
	require.True(t, ok)
	assert.False(t, status)
}

func TestFriendStatusService_SkipsUnaddressableFriends(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New()
	noRoot, unknownRegion, lookupFails, reachable := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	missing := uuid.New()
	r1 := &domain.RegionInfo{RegionID: uuid.New(), Handle: 7}

	f := newFriendFixture()
	f.friends.On("GetFriends", ctx, userA).Return([]domain.Friend{
		{FriendID: noRoot}, {FriendID: unknownRegion}, {FriendID: lookupFails}, {FriendID: reachable},
	}, nil)
	f.presence.On("GetPresence", ctx, noRoot).Return(&domain.Presence{UserID: noRoot, Online: true}, nil)
	f.presence.On("GetPresence", ctx, unknownRegion).Return(&domain.Presence{UserID: unknownRegion, RootRegionID: missing, Online: true}, nil)
	f.presence.On("GetPresence", ctx, lookupFails).Return(nil, errors.New("redis down"))
	f.presence.On("GetPresence", ctx, reachable).Return(&domain.Presence{UserID: reachable, RootRegionID: r1.RegionID, Online: true}, nil)
	f.regions.On("GetRegionByID", ctx, missing).Return(nil, apperrors.ErrRegionNotFound)
	f.regions.On("GetRegionByID", ctx, r1.RegionID).Return(r1, nil)

	out, _, err := f.svc.HandleStatusChange(ctx, domain.UserStatusChange{UserID: userA, Online: false})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempted)
	posts := f.poster.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, r1.Handle, posts[0].Handle)
}

func TestFriendStatusService_MissingDirectories(t *testing.T) {
	ctx := context.Background()
	poster := mocks.NewRecordingPoster()
	svc := services.NewFriendStatusService(nil, nil, nil, nil, nil, poster, logging.Discard())

	bus := eventbus.New(logging.Discard())
	bus.UserStatus.Subscribe("friends", svc.HandleStatusChange)

	var (
		out domain.FanOut
		ok  bool
	)
	assert.NotPanics(t, func() {
		out, ok = bus.UserStatus.Publish(ctx, domain.UserStatusChange{UserID: uuid.New(), Online: true, RegionID: uuid.New()})
	})
	assert.False(t, ok)
	assert.Zero(t, out)
	assert.Empty(t, poster.Posts())
}

func TestFriendStatusService_NoFriends(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New()

	f := newFriendFixture()
	f.friends.On("GetFriends", ctx, userA).Return(nil, nil)

	out, ok, err := f.svc.HandleStatusChange(ctx, domain.UserStatusChange{UserID: userA, Online: true, RegionID: uuid.New()})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, out)
	assert.Empty(t, f.poster.Posts())
	f.regions.AssertNotCalled(t, "GetRegionByID", mock.Anything, mock.Anything)
}

func TestFriendStatusService_FriendsLookupError(t *testing.T) {
	ctx := context.Background()
	userA := uuid.New()

	f := newFriendFixture()
	f.friends.On("GetFriends", ctx, userA).Return(nil, errors.New("db unavailable"))

	_, _, err := f.svc.HandleStatusChange(ctx, domain.UserStatusChange{UserID: userA})

	assert.NoError(t, err)
	assert.Empty(t, f.poster.Posts())
}

func TestFriendStatusService_InvalidEvent(t *testing.T) {
	f := newFriendFixture()

	_, _, err := f.svc.HandleStatusChange(context.Background(), domain.UserStatusChange{Online: true})

	assert.ErrorIs(t, err, apperrors.ErrUserIDRequired)
	f.friends.AssertNotCalled(t, "GetFriends", mock.Anything, mock.Anything)
}

func TestFriendStatusService_OnEnvelope(t *testing.T) {
	ctx := context.Background()
	subject, informed := uuid.New(), uuid.New()

	t.Run("applies status to presenter", func(t *testing.T) {
		f := newFriendFixture()
		f.scenes.Add(scene.New(domain.RegionInfo{RegionID: uuid.New(), Handle: 1}, nil))
		f.presenter.On("UpdateFriendStatus", ctx, informed, subject, true).Return().Twice()

		env := domain.NewAgentStatusChange(subject, informed, true)
		assert.True(t, f.svc.OnEnvelope(ctx, env))
		assert.True(t, f.svc.OnEnvelope(ctx, env), "a duplicate is applied again with the same result")

		f.presenter.AssertExpectations(t)
	})

	t.Run("other methods are ignored", func(t *testing.T) {
		f := newFriendFixture()
		f.scenes.Add(scene.New(domain.RegionInfo{RegionID: uuid.New(), Handle: 1}, nil))

		assert.False(t, f.svc.OnEnvelope(ctx, domain.NewEstateUpdated(1, uuid.New())))
		f.presenter.AssertNotCalled(t, "UpdateFriendStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing fields are not consumed", func(t *testing.T) {
		f := newFriendFixture()
		f.scenes.Add(scene.New(domain.RegionInfo{RegionID: uuid.New(), Handle: 1}, nil))

		messages := []map[string]any{
			{domain.KeyFriendToInform: informed.String(), domain.KeyNewStatus: true},
			{domain.KeySubject: subject.String(), domain.KeyNewStatus: true},
			{domain.KeySubject: subject.String(), domain.KeyFriendToInform: informed.String()},
			{domain.KeySubject: "not-a-uuid", domain.KeyFriendToInform: informed.String(), domain.KeyNewStatus: true},
			{domain.KeySubject: subject.String(), domain.KeyFriendToInform: informed.String(), domain.KeyNewStatus: "yes"},
		}
		for _, msg := range messages {
			env, err := domain.NewEnvelope(domain.MethodAgentStatusChange, msg)
			require.NoError(t, err)
			assert.False(t, f.svc.OnEnvelope(ctx, env))
		}
		f.presenter.AssertNotCalled(t, "UpdateFriendStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no hosted scenes", func(t *testing.T) {
		f := newFriendFixture()

		assert.False(t, f.svc.OnEnvelope(ctx, domain.NewAgentStatusChange(subject, informed, true)))
		f.presenter.AssertNotCalled(t, "UpdateFriendStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no presenter", func(t *testing.T) {
		set := scene.NewSet()
		set.Add(scene.New(domain.RegionInfo{RegionID: uuid.New(), Handle: 1}, nil))
		svc := services.NewFriendStatusService(nil, nil, nil, set, nil, nil, logging.Discard())

		assert.False(t, svc.OnEnvelope(ctx, domain.NewAgentStatusChange(subject, informed, true)))
	})
}
