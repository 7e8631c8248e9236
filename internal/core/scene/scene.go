// Package scene holds the regions simulated by this process and their
// cached estate settings.
package scene

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

// Scene is one hosted region.
type Scene struct {
	regionID uuid.UUID
	handle   domain.RegionHandle
	name     string

	mu       sync.RWMutex
	estateID uint32
	settings *domain.EstateSettings
}

var _ ports.Scene = (*Scene)(nil)

// New creates a scene from its directory entry.
func New(info domain.RegionInfo, settings *domain.EstateSettings) *Scene {
	s := &Scene{
		regionID: info.RegionID,
		handle:   info.Handle,
		name:     info.Name,
		estateID: info.EstateID,
	}
	if settings != nil {
		s.ReplaceEstateSettings(settings)
	}
	return s
}

func (s *Scene) RegionID() uuid.UUID { return s.regionID }

func (s *Scene) Handle() domain.RegionHandle { return s.handle }

func (s *Scene) Name() string { return s.name }

// EstateID returns the estate this scene currently belongs to.
func (s *Scene) EstateID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.estateID
}

// EstateSettings returns a copy of the cached settings, or nil.
func (s *Scene) EstateSettings() *domain.EstateSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// ReplaceEstateSettings swaps the cached settings. A settings object for a
// different estate moves the scene to that estate.
func (s *Scene) ReplaceEstateSettings(settings *domain.EstateSettings) {
	if settings == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.Clone()
	s.estateID = settings.EstateID
}

// Set is the registry of scenes hosted by this process.
type Set struct {
	mu       sync.RWMutex
	byRegion map[uuid.UUID]*Scene
	byHandle map[domain.RegionHandle]*Scene
	order    []uuid.UUID
}

var _ ports.SceneSet = (*Set)(nil)

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		byRegion: make(map[uuid.UUID]*Scene),
		byHandle: make(map[domain.RegionHandle]*Scene),
	}
}

// Add registers s, replacing any scene for the same region.
func (set *Set) Add(s *Scene) {
	if s == nil {
		return
	}
	set.mu.Lock()
	defer set.mu.Unlock()

	if old, ok := set.byRegion[s.regionID]; ok {
		delete(set.byHandle, old.handle)
	} else {
		set.order = append(set.order, s.regionID)
	}
	set.byRegion[s.regionID] = s
	set.byHandle[s.handle] = s
}

// Remove unregisters the scene for regionID.
func (set *Set) Remove(regionID uuid.UUID) {
	set.mu.Lock()
	defer set.mu.Unlock()

	s, ok := set.byRegion[regionID]
	if !ok {
		return
	}
	delete(set.byRegion, regionID)
	delete(set.byHandle, s.handle)
	for i, id := range set.order {
		if id == regionID {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}
}

// FindSceneByRegionID returns the hosted scene or nil.
func (set *Set) FindSceneByRegionID(regionID uuid.UUID) ports.Scene {
	set.mu.RLock()
	defer set.mu.RUnlock()
	if s, ok := set.byRegion[regionID]; ok {
		return s
	}
	return nil
}

// FindSceneByHandle returns the hosted scene addressed by handle or nil.
func (set *Set) FindSceneByHandle(handle domain.RegionHandle) ports.Scene {
	set.mu.RLock()
	defer set.mu.RUnlock()
	if s, ok := set.byHandle[handle]; ok {
		return s
	}
	return nil
}

// Scenes returns the hosted scenes in the order they were added.
func (set *Set) Scenes() []ports.Scene {
	set.mu.RLock()
	defer set.mu.RUnlock()
	out := make([]ports.Scene, 0, len(set.order))
	for _, id := range set.order {
		out = append(out, set.byRegion[id])
	}
	return out
}

// Len returns the number of hosted scenes.
func (set *Set) Len() int {
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.byRegion)
}
