// Package ws implements the Connection Supervisor (spec §4.9): the
// PRE_OPEN -> AUTHED -> CLOSED state machine owning one client socket, its
// bus subscriber link, its subscribed channel set, and teardown.
//
// Adapted from the teacher's websocket.Hub/Client pump pair: ReadPump and
// WritePump keep the same ping/pong and buffered-write discipline, but
// there is no process-wide hub here — fan-out happens through the Bus
// Adapter, so each connection owns an independent bus.Subscription instead
// of being registered into a shared room map.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/codec"
	"github.com/jycamier/chatfanout/backend/internal/ipenrich"
	"github.com/jycamier/chatfanout/backend/internal/router"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 8192
	sendBufferSize = 256
)

type state int

const (
	statePreOpen state = iota
	stateAuthed
	stateClosed
)

// Connection is the Connection Supervisor for one socket. It implements
// router.Conn.
type Connection struct {
	id   string
	user chatmodel.User
	ip   string

	conn *websocket.Conn
	send chan []byte

	bus bus.Bus
	sub bus.Subscription

	router   *router.Router
	store    store.Store
	enricher *ipenrich.Worker

	mu    sync.RWMutex
	subs  map[string]bool
	rooms map[uuid.UUID]bool
	st    state

	cancel context.CancelFunc
}

var _ router.Conn = (*Connection)(nil)

// New performs the AUTHED entry sequence (spec §4.9): connects the
// subscriber link, computes the user's rooms-with-users roster, sends
// setRooms, subscribes to every room channel in one call, and joins
// presence in each. ip may be empty if the client's address could not be
// determined.
func New(ctx context.Context, conn *websocket.Conn, user chatmodel.User, ip string, b bus.Bus, r *router.Router, st store.Store, enricher *ipenrich.Worker) (*Connection, error) {
	selfChannel := "u" + user.ID.String()

	sub, err := b.Subscribe(ctx, selfChannel)
	if err != nil {
		return nil, fmt.Errorf("ws: subscribe self channel: %w", err)
	}

	c := &Connection{
		id:       uuid.NewString(),
		user:     user,
		ip:       ip,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		bus:      b,
		sub:      sub,
		router:   r,
		store:    st,
		enricher: enricher,
		subs:     map[string]bool{selfChannel: true},
		rooms:    make(map[uuid.UUID]bool),
		st:       stateAuthed,
	}

	rooms, err := st.FetchRoomsWithUsers(ctx, user.ID)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("ws: fetch rooms: %w", err)
	}

	if err := c.sendSetRooms(rooms); err != nil {
		_ = sub.Close()
		return nil, err
	}

	channels := make([]string, 0, len(rooms))
	roomIDs := make([]uuid.UUID, 0, len(rooms))
	seen := make(map[uuid.UUID]bool)
	for _, rw := range rooms {
		if seen[rw.RoomID] {
			continue
		}
		seen[rw.RoomID] = true
		roomIDs = append(roomIDs, rw.RoomID)
		channels = append(channels, "r"+rw.RoomID.String())
	}

	if len(channels) > 0 {
		if err := sub.Subscribe(ctx, channels...); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("ws: subscribe rooms: %w", err)
		}
	}
	c.mu.Lock()
	for _, ch := range channels {
		c.subs[ch] = true
	}
	for _, id := range roomIDs {
		c.rooms[id] = true
	}
	c.mu.Unlock()

	for _, id := range roomIDs {
		if err := r.JoinRoom(ctx, c, id); err != nil {
			slog.Warn("ws: presence join failed on handshake", "room_id", id, "error", err)
		}
	}

	if enricher != nil {
		enricher.TrackAsync(ctx, user.ID, ip)
	}

	return c, nil
}

func (c *Connection) sendSetRooms(rows []chatmodel.RoomWithUsers) error {
	content, err := codec.Raw(rows)
	if err != nil {
		return fmt.Errorf("ws: encode setRooms: %w", err)
	}
	return c.SendDirect(codec.Frame{Action: "setRooms", Content: content})
}

func (c *Connection) ConnID() string       { return c.id }
func (c *Connection) User() chatmodel.User { return c.user }

func (c *Connection) IsSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *Connection) Subscribe(ctx context.Context, channels ...string) error {
	if err := c.sub.Subscribe(ctx, channels...); err != nil {
		return err
	}
	c.mu.Lock()
	for _, ch := range channels {
		c.subs[ch] = true
		if id, ok := roomIDFromChannel(ch); ok {
			c.rooms[id] = true
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Connection) Unsubscribe(ctx context.Context, channels ...string) error {
	if err := c.sub.Unsubscribe(ctx, channels...); err != nil {
		return err
	}
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subs, ch)
		if id, ok := roomIDFromChannel(ch); ok {
			delete(c.rooms, id)
		}
	}
	c.mu.Unlock()
	return nil
}

func roomIDFromChannel(channel string) (uuid.UUID, bool) {
	if len(channel) < 2 || channel[0] != 'r' {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(channel[1:])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// SendDirect enqueues frame for delivery to this socket only.
func (c *Connection) SendDirect(frame codec.Frame) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Connection) enqueue(data []byte) error {
	c.mu.RLock()
	closed := c.st == stateClosed
	c.mu.RUnlock()
	if closed {
		return nil
	}
	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("ws: send buffer full, dropping frame", "conn_id", c.id)
		return nil
	}
}

// Run starts the read loop, the write loop, and the bus listener, and
// blocks until the connection closes. Call from its own goroutine.
func (c *Connection) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		c.readPump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		c.listenBus(ctx)
	}()

	wg.Wait()
	c.teardown(context.Background())
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cancel()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("ws: read error", "conn_id", c.id, "error", err)
			}
			return
		}
		if len(raw) == 0 {
			continue
		}
		if err := c.router.Dispatch(ctx, c, raw); err != nil {
			slog.Error("ws: dispatch failed", "conn_id", c.id, "error", err)
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// listenBus forwards every frame delivered on this connection's
// subscription to the socket, running the post-process hook for marked
// frames (spec §4.1, §9).
func (c *Connection) listenBus(ctx context.Context) {
	for msg := range c.sub.Listen(ctx) {
		if err := c.router.HandleBusFrame(ctx, c, msg.Payload); err != nil {
			slog.Error("ws: handle bus frame failed", "conn_id", c.id, "error", err)
		}
	}
}

// teardown runs the CLOSED entry sequence: for each room this connection
// had joined, clear its presence field and broadcast LOGOUT iff it was the
// user's last live connection there, then close the subscription, which
// drops every channel (spec §4.9).
func (c *Connection) teardown(ctx context.Context) {
	c.mu.Lock()
	c.st = stateClosed
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	for _, roomID := range rooms {
		if err := c.router.LeaveRoom(ctx, c, roomID); err != nil {
			slog.Warn("ws: presence leave failed on close", "room_id", roomID, "error", err)
		}
	}

	if err := c.sub.Close(); err != nil {
		slog.Warn("ws: close subscription failed", "conn_id", c.id, "error", err)
	}
	close(c.send)
}
