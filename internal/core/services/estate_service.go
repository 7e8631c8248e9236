package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/eventbus"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// EstateService implements the estate administration use cases.
type EstateService struct {
	estates ports.EstateDirectory
	scenes  ports.SceneSet
	topic   *eventbus.Topic[domain.EstateSettingsChanged, domain.FanOut]
	now     func() time.Time
}

var _ ports.EstateService = (*EstateService)(nil)

// NewEstateService creates a new estate service
func NewEstateService(
	estates ports.EstateDirectory,
	scenes ports.SceneSet,
	topic *eventbus.Topic[domain.EstateSettingsChanged, domain.FanOut],
) ports.EstateService {
	return &EstateService{
		estates: estates,
		scenes:  scenes,
		topic:   topic,
		now:     time.Now,
	}
}

// UpdateSettings saves an edit, refreshes the scenes of the estate hosted
// here and publishes EstateUpdated for the rest.
func (s *EstateService) UpdateSettings(ctx context.Context, params ports.UpdateEstateSettingsParams) (*domain.EstateSettings, domain.FanOut, error) {
	if s.estates == nil {
		return nil, domain.FanOut{}, apperrors.ErrInternal
	}

	// 1. Validate
	settings := params.Settings
	settings.EstateID = params.EstateID
	if err := settings.Validate(); err != nil {
		return nil, domain.FanOut{}, err
	}
	settings.UpdatedAt = s.now().UTC()

	// 2. Persist
	saved, err := s.estates.SaveEstateSettings(ctx, settings)
	if err != nil {
		return nil, domain.FanOut{}, fmt.Errorf("save estate settings: %w", err)
	}

	// 3. Refresh local scenes
	if s.scenes != nil {
		for _, sc := range s.scenes.Scenes() {
			if sc.EstateID() == saved.EstateID {
				sc.ReplaceEstateSettings(saved)
			}
		}
	}

	// 4. Publish
	var out domain.FanOut
	if s.topic != nil {
		out, _ = s.topic.Publish(ctx, domain.EstateSettingsChanged{
			EstateID: saved.EstateID,
			Settings: *saved,
		})
	}
	return saved, out, nil
}

// GetSettings returns the settings in force for a region. Hosted scenes
// answer from their cache.
func (s *EstateService) GetSettings(ctx context.Context, regionID uuid.UUID) (*domain.EstateSettings, error) {
	if regionID == uuid.Nil {
		return nil, apperrors.ErrRegionIDRequired
	}
	if s.scenes != nil {
		if sc := s.scenes.FindSceneByRegionID(regionID); sc != nil {
			if cached := sc.EstateSettings(); cached != nil {
				return cached, nil
			}
		}
	}
	if s.estates == nil {
		return nil, apperrors.ErrSettingsNotFound
	}
	return s.estates.LoadEstateSettings(ctx, regionID)
}
