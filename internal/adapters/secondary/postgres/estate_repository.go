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

const estateColumns = `e.estate_id, e.name, e.owner_id, e.public_access,
	e.allow_direct_teleport, e.deny_anonymous, e.abuse_email, e.updated_at`

const listEstateRegionsSQL = `
SELECT region_id
FROM regions
WHERE estate_id = $1
ORDER BY handle`

const loadSettingsByRegionSQL = `
SELECT ` + estateColumns + `
FROM estates e
JOIN regions r ON r.estate_id = e.estate_id
WHERE r.region_id = $1`

const lockEstateSQL = `
SELECT owner_id
FROM estates
WHERE estate_id = $1
FOR UPDATE`

const updateEstateSQL = `
UPDATE estates e
SET name = $2,
    owner_id = $3,
    public_access = $4,
    allow_direct_teleport = $5,
    deny_anonymous = $6,
    abuse_email = $7,
    updated_at = COALESCE($8, NOW())
WHERE e.estate_id = $1
RETURNING ` + estateColumns

const insertEstateSQL = `
INSERT INTO estates (estate_id, name, owner_id, public_access, allow_direct_teleport, deny_anonymous, abuse_email)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (estate_id) DO NOTHING`

// EstateRepository is the estate directory.
type EstateRepository struct {
	pool *pgxpool.Pool
}

var _ ports.EstateDirectory = (*EstateRepository)(nil)

// NewEstateRepository creates a new estate repository.
func NewEstateRepository(pool *pgxpool.Pool) *EstateRepository {
	return &EstateRepository{pool: pool}
}

// GetRegionsForEstate lists the regions of an estate ordered by handle.
func (r *EstateRepository) GetRegionsForEstate(ctx context.Context, estateID uint32) ([]uuid.UUID, error) {
	rows, err := getDBTX(ctx, r.pool).Query(ctx, listEstateRegionsSQL, int64(estateID))
	if err != nil {
		return nil, fmt.Errorf("list estate regions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan region id: %w", err)
		}
		ids = append(ids, fromUUID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list estate regions: %w", err)
	}
	return ids, nil
}

// LoadEstateSettings returns the settings of the estate regionID belongs to.
func (r *EstateRepository) LoadEstateSettings(ctx context.Context, regionID uuid.UUID) (*domain.EstateSettings, error) {
	row := getDBTX(ctx, r.pool).QueryRow(ctx, loadSettingsByRegionSQL, toUUID(regionID))
	settings, err := scanEstateSettings(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("load estate settings: %w", err)
	}
	return settings, nil
}

// SaveEstateSettings overwrites an existing estate's settings. A zero owner
// keeps the stored one.
func (r *EstateRepository) SaveEstateSettings(ctx context.Context, s domain.EstateSettings) (*domain.EstateSettings, error) {
	var saved *domain.EstateSettings
	err := withTransaction(ctx, r.pool, func(ctx context.Context) error {
		db := getDBTX(ctx, r.pool)

		var owner pgtype.UUID
		if err := db.QueryRow(ctx, lockEstateSQL, int64(s.EstateID)).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrEstateNotFound
			}
			return fmt.Errorf("lock estate: %w", err)
		}
		if s.OwnerID != uuid.Nil {
			owner = toUUID(s.OwnerID)
		}

		row := db.QueryRow(ctx, updateEstateSQL,
			int64(s.EstateID),
			s.EstateName,
			owner,
			s.PublicAccess,
			s.AllowDirectTeleport,
			s.DenyAnonymous,
			s.AbuseEmail,
			toTimestamptz(s.UpdatedAt),
		)
		var err error
		saved, err = scanEstateSettings(row)
		if err != nil {
			return fmt.Errorf("update estate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// CreateEstate inserts an estate if it does not exist yet.
func (r *EstateRepository) CreateEstate(ctx context.Context, s domain.EstateSettings) error {
	owner := toUUID(s.OwnerID)
	_, err := getDBTX(ctx, r.pool).Exec(ctx, insertEstateSQL,
		int64(s.EstateID),
		s.EstateName,
		owner,
		s.PublicAccess,
		s.AllowDirectTeleport,
		s.DenyAnonymous,
		s.AbuseEmail,
	)
	if err != nil {
		return fmt.Errorf("create estate: %w", err)
	}
	return nil
}

func scanEstateSettings(row pgx.Row) (*domain.EstateSettings, error) {
	var (
		estateID  int64
		owner     pgtype.UUID
		updatedAt pgtype.Timestamptz
		s         domain.EstateSettings
	)
	if err := row.Scan(
		&estateID,
		&s.EstateName,
		&owner,
		&s.PublicAccess,
		&s.AllowDirectTeleport,
		&s.DenyAnonymous,
		&s.AbuseEmail,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	s.EstateID = uint32(estateID)
	s.OwnerID = fromUUID(owner)
	s.UpdatedAt = fromTimestamptz(updatedAt)
	return &s, nil
}
