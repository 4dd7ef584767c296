// Package chatmodel defines the persistent entities of the chat fan-out
// engine: users, rooms, memberships, messages, and the IP-enrichment
// records collected as a side effect of connecting.
package chatmodel

import (
	"time"

	"github.com/google/uuid"
)

// Sex mirrors the GENDERS configuration: an index into a label mapping,
// not a hardcoded enum, so deployments can relabel without a migration.
type Sex int

const (
	SexMale Sex = iota
	SexFemale
	SexSecret
)

// User is immutable after creation except via account settings, which are
// out of scope for this engine (see spec §1).
type User struct {
	ID           uuid.UUID
	Username     string
	Sex          Sex
	PasswordHash string
	CreatedAt    time.Time
}

// Room is either public (Name set) or direct (Name nil, IsPrivate true).
// Disabled is the soft-delete tombstone: nil means active.
type Room struct {
	ID        uuid.UUID
	Name      *string
	IsPrivate bool
	Disabled  *time.Time
	CreatedAt time.Time
}

// IsDirect reports whether this room is a two-party direct channel.
func (r Room) IsDirect() bool {
	return r.Name == nil
}

// IsTombstoned reports whether the room has been soft-deleted.
func (r Room) IsTombstoned() bool {
	return r.Disabled != nil
}

// Membership is the many-to-many join row between User and Room, unique on
// the pair.
type Membership struct {
	UserID uuid.UUID
	RoomID uuid.UUID
}

// Message is append-only. Exactly one of ReceiverID or RoomID is set.
type Message struct {
	ID          int64
	SenderID    uuid.UUID
	ReceiverID  *uuid.UUID
	RoomID      *uuid.UUID
	Content     string
	Image       *string
	CreatedAtMs int64
}

// IsDirect reports whether this message targets a single user rather than a room.
func (m Message) IsDirect() bool {
	return m.ReceiverID != nil
}

// IPAddress is created lazily on first sighting; the enrichment fields are
// populated by the background worker (§4.10) and may remain empty if the
// geo-IP provider is unset or fails.
type IPAddress struct {
	IP          string
	ISP         string
	Country     string
	CountryCode string
	Region      string
	City        string
}

// Enriched reports whether this record carries geo-IP data beyond the bare IP.
func (a IPAddress) Enriched() bool {
	return a.ISP != "" || a.Country != ""
}

// UserJoinedInfo records that a user has been seen connecting from an IP at
// least once; it is written at most once per (user, ip) pair.
type UserJoinedInfo struct {
	UserID uuid.UUID
	IP     string
}

// RoomWithUsers is one row of the "rooms of user with member details" query
// hook (§6): every (room, member) pair the viewing user can see, shaped so
// the Connection Supervisor can group it into a roster per room without a
// second query.
type RoomWithUsers struct {
	UserID   uuid.UUID
	UserName string
	Sex      Sex
	RoomID   uuid.UUID
	RoomName *string
}
