package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/region-sync/internal/core/domain"
	"github.com/lorrc/region-sync/internal/core/ports"
)

const listFriendsSQL = `
SELECT friend_id
FROM friendships
WHERE user_id = $1
ORDER BY created_at, friend_id`

const addFriendshipSQL = `
INSERT INTO friendships (user_id, friend_id)
VALUES ($1, $2), ($2, $1)
ON CONFLICT DO NOTHING`

// FriendsRepository reads friend lists.
type FriendsRepository struct {
	pool *pgxpool.Pool
}

var _ ports.FriendsDirectory = (*FriendsRepository)(nil)

// NewFriendsRepository creates a new friends repository.
func NewFriendsRepository(pool *pgxpool.Pool) *FriendsRepository {
	return &FriendsRepository{pool: pool}
}

// GetFriends returns userID's friends. A user with no friends gets an empty
// list, not an error.
func (r *FriendsRepository) GetFriends(ctx context.Context, userID uuid.UUID) ([]domain.Friend, error) {
	rows, err := getDBTX(ctx, r.pool).Query(ctx, listFriendsSQL, toUUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []domain.Friend
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, domain.Friend{FriendID: fromUUID(id)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// AddFriendship records a mutual friendship. Adding an existing one is a
// no-op.
func (r *FriendsRepository) AddFriendship(ctx context.Context, a, b uuid.UUID) error {
	_, err := getDBTX(ctx, r.pool).Exec(ctx, addFriendshipSQL,
		toUUID(a),
		toUUID(b),
	)
	if err != nil {
		return fmt.Errorf("add friendship: %w", err)
	}
	return nil
}
