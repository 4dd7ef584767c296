// Package storetest provides an in-memory store.Store used by other
// packages' tests, so they can exercise real persistence semantics (unique
// memberships, direct-room lookup, message visibility) without a Postgres
// instance.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

type MemStore struct {
	mu sync.Mutex

	users        map[uuid.UUID]chatmodel.User
	usersByName  map[string]uuid.UUID
	rooms        map[uuid.UUID]chatmodel.Room
	memberships  map[uuid.UUID]map[uuid.UUID]struct{} // roomID -> set of userID
	directPairs  map[[2]uuid.UUID]uuid.UUID
	messages     []chatmodel.Message
	nextMsgID    int64
	ips          map[string]chatmodel.IPAddress
	joinedInfos  map[[2]string]struct{}
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		users:       make(map[uuid.UUID]chatmodel.User),
		usersByName: make(map[string]uuid.UUID),
		rooms:       make(map[uuid.UUID]chatmodel.Room),
		memberships: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		directPairs: make(map[[2]uuid.UUID]uuid.UUID),
		ips:         make(map[string]chatmodel.IPAddress),
		joinedInfos: make(map[[2]string]struct{}),
		nextMsgID:   1,
	}
}

func (m *MemStore) AddUser(u chatmodel.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.usersByName[u.Username] = u.ID
}

func (m *MemStore) GetUser(ctx context.Context, userID uuid.UUID) (chatmodel.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return chatmodel.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *MemStore) GetUserByUsername(ctx context.Context, username string) (chatmodel.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByName[username]
	if !ok {
		return chatmodel.User{}, store.ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemStore) CreateRoom(ctx context.Context, room chatmodel.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
	m.memberships[room.ID] = make(map[uuid.UUID]struct{})
	return nil
}

func (m *MemStore) GetRoom(ctx context.Context, roomID uuid.UUID) (chatmodel.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return chatmodel.Room{}, store.ErrNotFound
	}
	return r, nil
}

func (m *MemStore) SetRoomDisabled(ctx context.Context, roomID uuid.UUID, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	if disabled {
		now := time.Now()
		r.Disabled = &now
	} else {
		r.Disabled = nil
	}
	m.rooms[roomID] = r
	return nil
}

func (m *MemStore) DeleteRoomMember(ctx context.Context, roomID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members, ok := m.memberships[roomID]; ok {
		delete(members, userID)
	}
	return nil
}

func (m *MemStore) CreateMembership(ctx context.Context, mem chatmodel.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberships[mem.RoomID] == nil {
		m.memberships[mem.RoomID] = make(map[uuid.UUID]struct{})
	}
	if _, exists := m.memberships[mem.RoomID][mem.UserID]; exists {
		return store.ErrAlreadyMember
	}
	m.memberships[mem.RoomID][mem.UserID] = struct{}{}
	return nil
}

func (m *MemStore) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.memberships[roomID][userID]
	return ok, nil
}

func sortedPair(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() <= b.String() {
		return [2]uuid.UUID{a, b}
	}
	return [2]uuid.UUID{b, a}
}

func (m *MemStore) LookupDirectRoom(ctx context.Context, userA, userB uuid.UUID) (store.DirectRoomLookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.directPairs[sortedPair(userA, userB)]
	if !ok {
		return store.DirectRoomLookup{}, store.ErrNotFound
	}
	r := m.rooms[roomID]
	return store.DirectRoomLookup{RoomID: roomID, Disabled: r.IsTombstoned()}, nil
}

func (m *MemStore) CreateDirectRoom(ctx context.Context, room chatmodel.Room, userA, userB uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := sortedPair(userA, userB)
	if _, exists := m.directPairs[pair]; exists {
		return store.ErrDirectRoomExists
	}
	m.rooms[room.ID] = room
	m.memberships[room.ID] = map[uuid.UUID]struct{}{userA: {}, userB: {}}
	m.directPairs[pair] = room.ID
	return nil
}

func (m *MemStore) InsertMessage(ctx context.Context, msg chatmodel.Message) (chatmodel.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.nextMsgID
	m.nextMsgID++
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *MemStore) FetchRoomsWithUsers(ctx context.Context, userID uuid.UUID) ([]chatmodel.RoomWithUsers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var myRooms []uuid.UUID
	for roomID, members := range m.memberships {
		if _, ok := members[userID]; ok {
			myRooms = append(myRooms, roomID)
		}
	}
	sort.Slice(myRooms, func(i, j int) bool { return myRooms[i].String() < myRooms[j].String() })

	var out []chatmodel.RoomWithUsers
	for _, roomID := range myRooms {
		room := m.rooms[roomID]
		for memberID := range m.memberships[roomID] {
			u := m.users[memberID]
			out = append(out, chatmodel.RoomWithUsers{
				UserID:   u.ID,
				UserName: u.Username,
				Sex:      u.Sex,
				RoomID:   roomID,
				RoomName: room.Name,
			})
		}
	}
	return out, nil
}

func (m *MemStore) FetchMessagesBefore(ctx context.Context, f store.MessagesBefore) ([]chatmodel.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var visible []chatmodel.Message
	for _, msg := range m.messages {
		if f.HeaderID != nil && msg.ID >= *f.HeaderID {
			continue
		}
		isPublic := msg.ReceiverID == nil
		isSender := msg.SenderID == f.VisibleTo
		isReceiver := msg.ReceiverID != nil && *msg.ReceiverID == f.VisibleTo
		if isPublic || isSender || isReceiver {
			visible = append(visible, msg)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID > visible[j].ID })

	if len(visible) > f.Count {
		visible = visible[:f.Count]
	}
	return visible, nil
}

func (m *MemStore) GetOrCreateIP(ctx context.Context, ip string, enricher store.IPEnricher) (chatmodel.IPAddress, error) {
	m.mu.Lock()
	if existing, ok := m.ips[ip]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	addr := chatmodel.IPAddress{IP: ip}
	if enricher != nil {
		if enriched, err := enricher.Enrich(ctx, ip); err == nil && enriched != nil {
			addr = *enriched
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ips[ip] = addr
	return addr, nil
}

func (m *MemStore) RecordUserJoined(ctx context.Context, info chatmodel.UserJoinedInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{info.UserID.String(), info.IP}
	m.joinedInfos[key] = struct{}{}
	return nil
}
