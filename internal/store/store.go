// Package store defines the Store Gateway contract (spec §4.3): typed,
// retry-on-stale-connection access to every persistent entity the engine
// touches. internal/store/postgres provides the production implementation.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
)

// Sentinel errors classifying Store failures, in the teacher's style
// (internal/repository/postgres.ErrNotFound), extended with the business
// errors the Room Lifecycle and Message Pipeline need to map to `growl` frames.
var (
	ErrNotFound          = errors.New("store: not found")
	ErrAlreadyMember     = errors.New("store: already a member")
	ErrDirectRoomExists  = errors.New("store: direct room already exists")
	ErrAlreadyInChannel  = errors.New("store: already in channel")
)

// DirectRoomLookup is the result of the "direct room between two users"
// query hook (§6): GET_DIRECT_ROOM_ID.
type DirectRoomLookup struct {
	RoomID   uuid.UUID
	Disabled bool
}

// MessagesBefore is the set of filters accepted by FetchMessagesBefore.
type MessagesBefore struct {
	HeaderID  *int64
	Count     int
	VisibleTo uuid.UUID
}

// IPEnricher looks up geo-IP data for an IP literal; it is the pluggable
// dependency GetOrCreateIP calls on a cache miss (§4.10). A nil result with
// a nil error means "no enrichment available" — the bare IP is stored.
type IPEnricher interface {
	Enrich(ctx context.Context, ip string) (*chatmodel.IPAddress, error)
}

// Store is the Store Gateway contract. Every method already carries the
// gateway's retry-once-on-stale-connection policy (§4.3, §9); callers see a
// stale-connection error only when the single retry fails as well, and
// otherwise only ErrNotFound / the business sentinels / a terminal error.
type Store interface {
	GetUser(ctx context.Context, userID uuid.UUID) (chatmodel.User, error)
	GetUserByUsername(ctx context.Context, username string) (chatmodel.User, error)

	CreateRoom(ctx context.Context, room chatmodel.Room) error
	GetRoom(ctx context.Context, roomID uuid.UUID) (chatmodel.Room, error)
	SetRoomDisabled(ctx context.Context, roomID uuid.UUID, disabled bool) error
	DeleteRoomMember(ctx context.Context, roomID, userID uuid.UUID) error
	CreateMembership(ctx context.Context, m chatmodel.Membership) error
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)

	// LookupDirectRoom runs GET_DIRECT_ROOM_ID for the given pair, returning
	// ErrNotFound when no direct room exists between them yet.
	LookupDirectRoom(ctx context.Context, userA, userB uuid.UUID) (DirectRoomLookup, error)
	// CreateDirectRoom atomically creates a direct room for the sorted
	// pair, serialized by an advisory lock so concurrent callers for the
	// same pair cannot both win (§9 Open Question #3). The loser observes
	// ErrDirectRoomExists.
	CreateDirectRoom(ctx context.Context, room chatmodel.Room, userA, userB uuid.UUID) error

	InsertMessage(ctx context.Context, msg chatmodel.Message) (chatmodel.Message, error)
	// FetchRoomsWithUsers runs USER_ROOMS_QUERY: every room the user
	// belongs to, joined with every member of each of those rooms.
	FetchRoomsWithUsers(ctx context.Context, userID uuid.UUID) ([]chatmodel.RoomWithUsers, error)
	FetchMessagesBefore(ctx context.Context, f MessagesBefore) ([]chatmodel.Message, error)

	GetOrCreateIP(ctx context.Context, ip string, enricher IPEnricher) (chatmodel.IPAddress, error)
	RecordUserJoined(ctx context.Context, info chatmodel.UserJoinedInfo) error
}
