package services

import (
	"context"
	"log/slog"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// EstateUpdateService asks every region of an edited estate to reload its
// settings, and performs that reload when such a request arrives here.
type EstateUpdateService struct {
	estates     ports.EstateDirectory
	regions     ports.RegionDirectory
	scenes      ports.SceneSet
	poster      ports.DispatchPoster
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
}

var _ ports.EnvelopeDecoder = (*EstateUpdateService)(nil)

// NewEstateUpdateService creates a new estate update service. Any
// collaborator may be nil.
func NewEstateUpdateService(
	estates ports.EstateDirectory,
	regions ports.RegionDirectory,
	scenes ports.SceneSet,
	poster ports.DispatchPoster,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
) *EstateUpdateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EstateUpdateService{
		estates:     estates,
		regions:     regions,
		scenes:      scenes,
		poster:      poster,
		broadcaster: broadcaster,
		logger:      logger.With("component", "estate_update"),
	}
}

// HandleSettingsChanged is the bus subscriber for EstateUpdated. It posts a
// reload request to every region of the estate; the settings stay in the
// estate directory.
func (s *EstateUpdateService) HandleSettingsChanged(ctx context.Context, ev domain.EstateSettingsChanged) (domain.FanOut, bool, error) {
	if s.estates == nil || s.regions == nil {
		s.logger.DebugContext(ctx, "directories not configured, skipping estate propagation",
			"estate_id", ev.EstateID,
		)
		return domain.FanOut{}, false, nil
	}
	if err := ev.Validate(); err != nil {
		return domain.FanOut{}, false, err
	}

	regionIDs, err := s.estates.GetRegionsForEstate(ctx, ev.EstateID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list estate regions",
			"estate_id", ev.EstateID,
			"error", err,
		)
		return domain.FanOut{}, false, nil
	}

	var out domain.FanOut
	for _, regionID := range regionIDs {
		info, err := s.regions.GetRegionByID(ctx, regionID)
		if err != nil || info == nil {
			s.logger.DebugContext(ctx, "estate region not found, skipping",
				"estate_id", ev.EstateID,
				"region_id", regionID,
			)
			continue
		}
		out.Attempted++
		if s.poster != nil && s.poster.Post(info.Handle, domain.NewEstateUpdated(ev.EstateID, regionID)) {
			out.Posted++
		}
	}

	s.logger.DebugContext(ctx, "estate update propagated",
		"estate_id", ev.EstateID,
		"regions", len(regionIDs),
		"posted", out.Posted,
	)
	return out, true, nil
}

// OnEnvelope reloads estate settings for a scene hosted here.
func (s *EstateUpdateService) OnEnvelope(ctx context.Context, env domain.Envelope) bool {
	if !env.Is(domain.MethodEstateUpdated) {
		return false
	}

	estateID, ok := env.Uint32(domain.KeyEstateID)
	if !ok {
		return false
	}
	regionID, ok := env.UUID(domain.KeyRegionID)
	if !ok {
		return false
	}

	if s.scenes == nil {
		return false
	}
	sc := s.scenes.FindSceneByRegionID(regionID)
	if sc == nil {
		return false
	}
	// The scene may have moved to another estate since the post.
	if sc.EstateID() != estateID {
		s.logger.DebugContext(ctx, "estate mismatch, ignoring reload",
			"region_id", regionID,
			"scene_estate_id", sc.EstateID(),
			"envelope_estate_id", estateID,
		)
		return false
	}
	if s.estates == nil {
		return false
	}

	settings, err := s.estates.LoadEstateSettings(ctx, regionID)
	if err != nil || settings == nil {
		s.logger.WarnContext(ctx, "failed to reload estate settings",
			"region_id", regionID,
			"estate_id", estateID,
			"error", err,
		)
		return false
	}

	sc.ReplaceEstateSettings(settings)

	if s.broadcaster != nil {
		event := domain.ViewerEvent{
			Type: domain.ViewerEstateSettings,
			Payload: domain.EstateSettingsPayload{
				EstateID:     settings.EstateID,
				EstateName:   settings.EstateName,
				PublicAccess: settings.PublicAccess,
			},
			RegionID: regionID,
		}
		if err := s.broadcaster.Broadcast(event); err != nil {
			s.logger.WarnContext(ctx, "failed to broadcast estate settings",
				"region_id", regionID,
				"error", err,
			)
		}
	}
	return true
}
