package postgres

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
)

// newEstateWithRegions creates an estate owning n fresh regions.
func newEstateWithRegions(t *testing.T, n int) (uint32, []domain.RegionInfo) {
	t.Helper()
	ctx := context.Background()
	pool := requirePool(t)

	estateID := rand.Uint32N(1<<31) + 1
	estates := NewEstateRepository(pool)
	require.NoError(t, estates.CreateEstate(ctx, domain.EstateSettings{
		EstateID:     estateID,
		EstateName:   "Estate",
		PublicAccess: true,
	}))

	regions := NewRegionRepository(pool)
	infos := make([]domain.RegionInfo, 0, n)
	for i := 0; i < n; i++ {
		info := domain.RegionInfo{
			RegionID: uuid.New(),
			Handle:   domain.RegionHandle(rand.Uint64()),
			Name:     "Region",
			EstateID: estateID,
		}
		require.NoError(t, regions.UpsertRegion(ctx, info))
		infos = append(infos, info)
	}
	return estateID, infos
}

func TestFriendsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewFriendsRepository(requirePool(t))

	userA, userB, userC := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, repo.AddFriendship(ctx, userA, userB))
	require.NoError(t, repo.AddFriendship(ctx, userA, userC))
	require.NoError(t, repo.AddFriendship(ctx, userA, userB), "adding twice is a no-op")

	friends, err := repo.GetFriends(ctx, userA)
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, f := range friends {
		ids = append(ids, f.FriendID)
	}
	assert.ElementsMatch(t, []uuid.UUID{userB, userC}, ids)

	friends, err = repo.GetFriends(ctx, userB)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, userA, friends[0].FriendID)

	friends, err = repo.GetFriends(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestRegionRepository(t *testing.T) {
	ctx := context.Background()
	_, infos := newEstateWithRegions(t, 1)
	repo := NewRegionRepository(requirePool(t))

	got, err := repo.GetRegionByID(ctx, infos[0].RegionID)
	require.NoError(t, err)
	assert.Equal(t, infos[0], *got, "handles above MaxInt64 survive the round trip")

	_, err = repo.GetRegionByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrRegionNotFound)
}

func TestEstateRepository_GetRegionsForEstate(t *testing.T) {
	ctx := context.Background()
	estateID, infos := newEstateWithRegions(t, 3)
	repo := NewEstateRepository(requirePool(t))

	ids, err := repo.GetRegionsForEstate(ctx, estateID)
	require.NoError(t, err)
	want := make([]uuid.UUID, 0, len(infos))
	for _, info := range infos {
		want = append(want, info.RegionID)
	}
	assert.ElementsMatch(t, want, ids)

	ids, err = repo.GetRegionsForEstate(ctx, estateID+1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEstateRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	estateID, infos := newEstateWithRegions(t, 2)
	repo := NewEstateRepository(requirePool(t))

	before, err := repo.LoadEstateSettings(ctx, infos[0].RegionID)
	require.NoError(t, err)
	assert.Equal(t, estateID, before.EstateID)
	assert.Equal(t, "Estate", before.EstateName)

	owner := uuid.New()
	updatedAt := time.Now().UTC().Truncate(time.Millisecond)
	saved, err := repo.SaveEstateSettings(ctx, domain.EstateSettings{
		EstateID:      estateID,
		EstateName:    "Renamed",
		OwnerID:       owner,
		DenyAnonymous: true,
		AbuseEmail:    "abuse@example.com",
		UpdatedAt:     updatedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", saved.EstateName)
	assert.Equal(t, owner, saved.OwnerID)
	assert.WithinDuration(t, updatedAt, saved.UpdatedAt, time.Millisecond)

	// Every region of the estate sees the new settings.
	for _, info := range infos {
		loaded, err := repo.LoadEstateSettings(ctx, info.RegionID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", loaded.EstateName)
		assert.True(t, loaded.DenyAnonymous)
		assert.False(t, loaded.PublicAccess)
	}

	t.Run("zero owner keeps the stored one", func(t *testing.T) {
		saved, err := repo.SaveEstateSettings(ctx, domain.EstateSettings{EstateID: estateID, EstateName: "Again"})
		require.NoError(t, err)
		assert.Equal(t, owner, saved.OwnerID)
		assert.False(t, saved.UpdatedAt.IsZero())
	})

	t.Run("unknown estate", func(t *testing.T) {
		_, err := repo.SaveEstateSettings(ctx, domain.EstateSettings{EstateID: estateID + 1<<31})
		assert.ErrorIs(t, err, apperrors.ErrEstateNotFound)
	})

	t.Run("unknown region", func(t *testing.T) {
		_, err := repo.LoadEstateSettings(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrSettingsNotFound)
	})
}
