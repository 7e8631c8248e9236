package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// MockFriendsDirectory is a mock implementation of ports.FriendsDirectory
type MockFriendsDirectory struct {
	mock.Mock
}

func NewMockFriendsDirectory() *MockFriendsDirectory {
	return &MockFriendsDirectory{}
}

func (m *MockFriendsDirectory) GetFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friend, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Friend), args.Error(1)
}

// MockPresenceDirectory is a mock implementation of ports.PresenceDirectory
type MockPresenceDirectory struct {
	mock.Mock
}

func NewMockPresenceDirectory() *MockPresenceDirectory {
	return &MockPresenceDirectory{}
}

func (m *MockPresenceDirectory) GetPresence(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Presence), args.Error(1)
}

func (m *MockPresenceDirectory) SetPresence(ctx context.Context, presence domain.Presence) error {
	args := m.Called(ctx, presence)
	return args.Error(0)
}

func (m *MockPresenceDirectory) ClearPresence(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockRegionDirectory is a mock implementation of ports.RegionDirectory
type MockRegionDirectory struct {
	mock.Mock
}

func NewMockRegionDirectory() *MockRegionDirectory {
	return &MockRegionDirectory{}
}

func (m *MockRegionDirectory) GetRegionByID(ctx context.Context, regionID uuid.UUID) (*domain.RegionInfo, error) {
	args := m.Called(ctx, regionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RegionInfo), args.Error(1)
}

// MockEstateDirectory is a mock implementation of ports.EstateDirectory
type MockEstateDirectory struct {
	mock.Mock
}

func NewMockEstateDirectory() *MockEstateDirectory {
	return &MockEstateDirectory{}
}

func (m *MockEstateDirectory) GetRegionsForEstate(ctx context.Context, estateID uint32) ([]uuid.UUID, error) {
	args := m.Called(ctx, estateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockEstateDirectory) LoadEstateSettings(ctx context.Context, regionID uuid.UUID) (*domain.EstateSettings, error) {
	args := m.Called(ctx, regionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EstateSettings), args.Error(1)
}

func (m *MockEstateDirectory) SaveEstateSettings(ctx context.Context, settings domain.EstateSettings) (*domain.EstateSettings, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EstateSettings), args.Error(1)
}

// MockTransport is a mock implementation of ports.Transport
type MockTransport struct {
	mock.Mock
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Send(ctx context.Context, handle domain.RegionHandle, env domain.Envelope) error {
	args := m.Called(ctx, handle, env)
	return args.Error(0)
}

// MockFriendsPresenter is a mock implementation of ports.FriendsPresenter
type MockFriendsPresenter struct {
	mock.Mock
}

func NewMockFriendsPresenter() *MockFriendsPresenter {
	return &MockFriendsPresenter{}
}

func (m *MockFriendsPresenter) UpdateFriendStatus(ctx context.Context, viewerID, friendID uuid.UUID, online bool) {
	m.Called(ctx, viewerID, friendID, online)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.ViewerEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockEnvelopeReceiver is a mock implementation of ports.EnvelopeReceiver
type MockEnvelopeReceiver struct {
	mock.Mock
}

func NewMockEnvelopeReceiver() *MockEnvelopeReceiver {
	return &MockEnvelopeReceiver{}
}

func (m *MockEnvelopeReceiver) OnEnvelope(ctx context.Context, env domain.Envelope) bool {
	args := m.Called(ctx, env)
	return args.Bool(0)
}

func (m *MockEnvelopeReceiver) HandleRaw(ctx context.Context, data []byte) bool {
	args := m.Called(ctx, data)
	return args.Bool(0)
}

// MockPresenceService is a mock implementation of ports.PresenceService
type MockPresenceService struct {
	mock.Mock
}

func NewMockPresenceService() *MockPresenceService {
	return &MockPresenceService{}
}

func (m *MockPresenceService) SetStatus(ctx context.Context, params ports.SetPresenceParams) (domain.FanOut, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(domain.FanOut), args.Error(1)
}

// MockEstateService is a mock implementation of ports.EstateService
type MockEstateService struct {
	mock.Mock
}

func NewMockEstateService() *MockEstateService {
	return &MockEstateService{}
}

func (m *MockEstateService) UpdateSettings(ctx context.Context, params ports.UpdateEstateSettingsParams) (*domain.EstateSettings, domain.FanOut, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Get(1).(domain.FanOut), args.Error(2)
	}
	return args.Get(0).(*domain.EstateSettings), args.Get(1).(domain.FanOut), args.Error(2)
}

func (m *MockEstateService) GetSettings(ctx context.Context, regionID uuid.UUID) (*domain.EstateSettings, error) {
	args := m.Called(ctx, regionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EstateSettings), args.Error(1)
}

// Post is one envelope handed to a RecordingPoster.
type Post struct {
	Handle   domain.RegionHandle
	Envelope domain.Envelope
}

// RecordingPoster is a ports.DispatchPoster that keeps every post in order.
type RecordingPoster struct {
	mu     sync.Mutex
	posts  []Post
	Reject bool
}

var _ ports.DispatchPoster = (*RecordingPoster)(nil)

func NewRecordingPoster() *RecordingPoster {
	return &RecordingPoster{}
}

func (p *RecordingPoster) Post(handle domain.RegionHandle, env domain.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, Post{Handle: handle, Envelope: env})
	return !p.Reject
}

// Posts returns a copy of the recorded posts.
func (p *RecordingPoster) Posts() []Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Post, len(p.posts))
	copy(out, p.posts)
	return out
}
