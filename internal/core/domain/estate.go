package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/region-sync/internal/core/errors"
)

const MaxEstateNameLength = 64

// EstateSettings is the administrative configuration shared by every region
// of an estate.
type EstateSettings struct {
	EstateID            uint32
	EstateName          string
	OwnerID             uuid.UUID
	PublicAccess        bool
	AllowDirectTeleport bool
	DenyAnonymous       bool
	AbuseEmail          string
	UpdatedAt           time.Time
}

// Validate enforces the invariants the admin surface relies on.
func (s *EstateSettings) Validate() error {
	if s.EstateID == 0 {
		return apperrors.ErrEstateIDRequired
	}
	s.EstateName = strings.TrimSpace(s.EstateName)
	if len(s.EstateName) > MaxEstateNameLength {
		return apperrors.ErrEstateNameTooLong
	}
	return nil
}

// Clone returns an independent copy.
func (s *EstateSettings) Clone() *EstateSettings {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
