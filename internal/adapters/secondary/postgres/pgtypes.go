package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// toUUID converts a domain ID to a pgtype.UUID.
// uuid.Nil is considered invalid (NULL).
func toUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

// fromUUID converts a pgtype.UUID to a domain ID.
// A NULL value is converted to uuid.Nil.
func fromUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return id.Bytes
}

// toTimestamptz converts a time to a pgtype.Timestamptz.
// The zero time is considered invalid (NULL).
func toTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

// fromTimestamptz converts a pgtype.Timestamptz to a time.
// A NULL value is converted to the zero time.
func fromTimestamptz(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
