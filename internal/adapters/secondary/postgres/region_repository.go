package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/region-sync/internal/core/domain"
	apperrors "github.com/lorrc/region-sync/internal/core/errors"
	"github.com/lorrc/region-sync/internal/core/ports"
)

const getRegionSQL = `
SELECT region_id, handle, name, estate_id
FROM regions
WHERE region_id = $1`

const upsertRegionSQL = `
INSERT INTO regions (region_id, handle, name, estate_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (region_id) DO UPDATE
SET handle = EXCLUDED.handle, name = EXCLUDED.name, estate_id = EXCLUDED.estate_id`

// RegionRepository is the region directory.
type RegionRepository struct {
	pool *pgxpool.Pool
}

var _ ports.RegionDirectory = (*RegionRepository)(nil)

// NewRegionRepository creates a new region repository.
func NewRegionRepository(pool *pgxpool.Pool) *RegionRepository {
	return &RegionRepository{pool: pool}
}

// GetRegionByID returns the directory entry or ErrRegionNotFound.
func (r *RegionRepository) GetRegionByID(ctx context.Context, regionID uuid.UUID) (*domain.RegionInfo, error) {
	var (
		id       pgtype.UUID
		handle   int64
		name     string
		estateID int64
	)
	err := getDBTX(ctx, r.pool).
		QueryRow(ctx, getRegionSQL, toUUID(regionID)).
		Scan(&id, &handle, &name, &estateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRegionNotFound
		}
		return nil, fmt.Errorf("get region: %w", err)
	}

	return &domain.RegionInfo{
		RegionID: fromUUID(id),
		Handle:   domain.RegionHandle(uint64(handle)),
		Name:     name,
		EstateID: uint32(estateID),
	}, nil
}

// UpsertRegion registers a region, moving it to info.EstateID if it already
// exists.
func (r *RegionRepository) UpsertRegion(ctx context.Context, info domain.RegionInfo) error {
	_, err := getDBTX(ctx, r.pool).Exec(ctx, upsertRegionSQL,
		toUUID(info.RegionID),
		int64(uint64(info.Handle)),
		info.Name,
		int64(info.EstateID),
	)
	if err != nil {
		return fmt.Errorf("upsert region: %w", err)
	}
	return nil
}
