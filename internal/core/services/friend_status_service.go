package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// FriendStatusService propagates login and logout transitions to the regions
// hosting a user's friends, and applies inbound AgentStatusChange envelopes
// to the local friends presenter.
type FriendStatusService struct {
	friends   ports.FriendsDirectory
	presence  ports.PresenceDirectory
	regions   ports.RegionDirectory
	scenes    ports.SceneSet
	presenter ports.FriendsPresenter
	poster    ports.DispatchPoster
	logger    *slog.Logger
}

var _ ports.EnvelopeDecoder = (*FriendStatusService)(nil)

// NewFriendStatusService creates a new friend status service. Any
// collaborator may be nil; the paths that need it then do nothing.
func NewFriendStatusService(
	friends ports.FriendsDirectory,
	presence ports.PresenceDirectory,
	regions ports.RegionDirectory,
	scenes ports.SceneSet,
	presenter ports.FriendsPresenter,
	poster ports.DispatchPoster,
	logger *slog.Logger,
) *FriendStatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FriendStatusService{
		friends:   friends,
		presence:  presence,
		regions:   regions,
		scenes:    scenes,
		presenter: presenter,
		poster:    poster,
		logger:    logger.With("component", "friend_status"),
	}
}

// HandleStatusChange is the bus subscriber for UserStatusChange. It tells
// every online friend's root region about the transition and, on login,
// tells the subject's own region which friends are online.
func (s *FriendStatusService) HandleStatusChange(ctx context.Context, ev domain.UserStatusChange) (domain.FanOut, bool, error) {
	if s.friends == nil || s.presence == nil || s.regions == nil {
		s.logger.DebugContext(ctx, "directories not configured, skipping status propagation",
			"user_id", ev.UserID,
		)
		return domain.FanOut{}, false, nil
	}
	if err := ev.Validate(); err != nil {
		return domain.FanOut{}, false, err
	}

	friends, err := s.friends.GetFriends(ctx, ev.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load friends",
			"user_id", ev.UserID,
			"error", err,
		)
		return domain.FanOut{}, false, nil
	}

	var out domain.FanOut
	online := make([]uuid.UUID, 0, len(friends))

	// 1. Inform each online friend where they are rooted
	for _, f := range friends {
		info := s.rootRegionOf(ctx, f.FriendID)
		if info == nil {
			continue
		}
		online = append(online, f.FriendID)
		out.Attempted++
		if s.post(info.Handle, domain.NewAgentStatusChange(ev.UserID, f.FriendID, ev.Online)) {
			out.Posted++
		}
	}

	// 2. On login, tell the subject which friends are online
	if ev.Online && len(online) > 0 {
		own := s.lookupRegion(ctx, ev.RegionID)
		if own == nil {
			s.logger.DebugContext(ctx, "subject region not found, skipping reverse notification",
				"user_id", ev.UserID,
				"region_id", ev.RegionID,
			)
			return out, true, nil
		}
		for _, friendID := range online {
			out.Attempted++
			if s.post(own.Handle, domain.NewAgentStatusChange(friendID, ev.UserID, true)) {
				out.Posted++
			}
		}
	}

	s.logger.DebugContext(ctx, "status change propagated",
		"user_id", ev.UserID,
		"online", ev.Online,
		"attempted", out.Attempted,
		"posted", out.Posted,
	)
	return out, true, nil
}

// OnEnvelope applies an AgentStatusChange addressed to a user of this process.
func (s *FriendStatusService) OnEnvelope(ctx context.Context, env domain.Envelope) bool {
	if !env.Is(domain.MethodAgentStatusChange) {
		return false
	}

	subject, ok := env.UUID(domain.KeySubject)
	if !ok {
		return s.malformed(ctx, domain.KeySubject)
	}
	informed, ok := env.UUID(domain.KeyFriendToInform)
	if !ok {
		return s.malformed(ctx, domain.KeyFriendToInform)
	}
	status, ok := env.Bool(domain.KeyNewStatus)
	if !ok {
		return s.malformed(ctx, domain.KeyNewStatus)
	}

	if s.scenes == nil || len(s.scenes.Scenes()) == 0 || s.presenter == nil {
		return false
	}

	s.presenter.UpdateFriendStatus(ctx, informed, subject, status)
	return true
}

// rootRegionOf resolves the region hosting userID's root agent, or nil when
// the user is offline or the region is unknown.
func (s *FriendStatusService) rootRegionOf(ctx context.Context, userID uuid.UUID) *domain.RegionInfo {
	p, err := s.presence.GetPresence(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "presence lookup failed",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	root, ok := p.RootRegion()
	if !ok {
		return nil
	}
	return s.lookupRegion(ctx, root)
}

func (s *FriendStatusService) lookupRegion(ctx context.Context, regionID uuid.UUID) *domain.RegionInfo {
	info, err := s.regions.GetRegionByID(ctx, regionID)
	if err != nil {
		s.logger.DebugContext(ctx, "region lookup failed",
			"region_id", regionID,
			"error", err,
		)
		return nil
	}
	return info
}

func (s *FriendStatusService) post(handle domain.RegionHandle, env domain.Envelope) bool {
	if s.poster == nil {
		return false
	}
	return s.poster.Post(handle, env)
}

func (s *FriendStatusService) malformed(ctx context.Context, field string) bool {
	s.logger.DebugContext(ctx, "ignoring envelope with missing field",
		"method", domain.MethodAgentStatusChange,
		"field", field,
	)
	return false
}
