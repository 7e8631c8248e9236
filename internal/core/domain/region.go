package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// RegionHandle is the opaque address of a region process on the transport.
type RegionHandle uint64

// String formats the handle as a decimal number.
func (h RegionHandle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// ParseRegionHandle parses the decimal form produced by String.
func ParseRegionHandle(s string) (RegionHandle, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return RegionHandle(v), nil
}

// RegionInfo is a region directory entry.
type RegionInfo struct {
	RegionID uuid.UUID
	Handle   RegionHandle
	Name     string
	EstateID uint32
}

// Presence records a user's session and the region hosting their avatar
// as root.
type Presence struct {
	UserID       uuid.UUID
	RootRegionID uuid.UUID
	Online       bool
}

// RootRegion returns the root region, or false when the user has none.
func (p *Presence) RootRegion() (uuid.UUID, bool) {
	if p == nil || !p.Online || p.RootRegionID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.RootRegionID, true
}

// Friend is one entry of a user's friend list.
type Friend struct {
	FriendID uuid.UUID
}
