// Package router implements the Message Router (spec §4.6): the
// pre-process table dispatching inbound client frames to handlers, and the
// post-process table running after a marked frame loops back through the
// bus so every process sharing it keeps its local connection state
// consistent (spec §9).
package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/codec"
	"github.com/jycamier/chatfanout/backend/internal/growl"
	"github.com/jycamier/chatfanout/backend/internal/message"
	"github.com/jycamier/chatfanout/backend/internal/presence"
	"github.com/jycamier/chatfanout/backend/internal/room"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

// Conn is everything a handler needs from the connection that is
// dispatching or receiving a frame. It is implemented by the Connection
// Supervisor (internal/ws); the router has no notion of the underlying
// socket.
type Conn interface {
	ConnID() string
	User() chatmodel.User

	IsSubscribed(channel string) bool
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error

	// SendDirect delivers frame to this connection only, bypassing the bus
	// entirely (growl, messages, setRooms, setOnlineUsers, ...).
	SendDirect(frame codec.Frame) error
}

// SpamPolicy gates an inbound action before it reaches a handler. The
// upstream system's anti-spam check is an unfinished stub with undefined
// semantics (spec §9 Open Question); NoopPolicy is the default, every
// other policy is pluggable.
type SpamPolicy interface {
	Allow(conn Conn, action string) bool
}

type NoopPolicy struct{}

func (NoopPolicy) Allow(Conn, string) bool { return true }

// PreHandler processes one inbound client frame.
type PreHandler func(ctx context.Context, conn Conn, frame codec.Frame) error

// PostHandler runs after a marked frame with this action arrives back
// through the bus.
type PostHandler func(ctx context.Context, conn Conn, frame codec.Frame) error

// Router owns the pre/post action tables and the component handles the
// handlers close over.
type Router struct {
	store     store.Store
	bus       bus.Bus
	presence  *presence.Tracker
	rooms     *room.Lifecycle
	messages  *message.Pipeline
	spam      SpamPolicy
	allRoomID uuid.UUID

	pre  map[string]PreHandler
	post map[string]PostHandler
}

func New(st store.Store, b bus.Bus, pr *presence.Tracker, rooms *room.Lifecycle, messages *message.Pipeline, spam SpamPolicy, allRoomID uuid.UUID) *Router {
	if spam == nil {
		spam = NoopPolicy{}
	}
	r := &Router{
		store:     st,
		bus:       b,
		presence:  pr,
		rooms:     rooms,
		messages:  messages,
		spam:      spam,
		allRoomID: allRoomID,
		pre:       make(map[string]PreHandler),
		post:      make(map[string]PostHandler),
	}
	r.registerDefaults()
	return r
}

func (r *Router) publishTo(ctx context.Context, channel string, payload []byte) error {
	return r.bus.Publish(ctx, channel, payload)
}

func (r *Router) registerDefaults() {
	r.pre["getMessages"] = r.handleGetMessages
	r.pre["sendMessage"] = r.handleSendMessage
	r.pre["call"] = r.handleCall
	r.pre["createDirectChannel"] = r.handleCreateDirectChannel
	r.pre["createRoomChannel"] = r.handleCreateRoomChannel
	r.pre["inviteUser"] = r.handleInviteUser
	r.pre["deleteRoom"] = r.handleDeleteRoom

	r.post["addRoom"] = r.postJoinRoom
	r.post["addDirectChannel"] = r.postJoinRoom
	r.post["inviteUser"] = r.postJoinRoom
	r.post["deleteRoom"] = r.postLeaveRoom
}

// Dispatch decodes raw and runs it through the pre-process table. Every
// error — validation, business-rule, or internal — is surfaced to the
// caller only as a growl frame sent directly to conn; Dispatch never
// returns an error the caller needs to act on further, except to log it.
func (r *Router) Dispatch(ctx context.Context, conn Conn, raw []byte) error {
	frame, err := codec.Decode(raw)
	if err != nil {
		return r.growlTo(conn, "Malformed message")
	}

	if !r.spam.Allow(conn, frame.Action) {
		return r.growlTo(conn, "Too many requests")
	}

	handler, ok := r.pre[frame.Action]
	if !ok {
		return r.growlTo(conn, "Unknown action "+frame.Action)
	}

	if err := handler(ctx, conn, frame); err != nil {
		var g *growl.Error
		if errors.As(err, &g) {
			return r.growlTo(conn, g.Message)
		}
		slog.Error("router: handler failed", "action", frame.Action, "error", err)
		return r.growlTo(conn, "Internal error")
	}
	return nil
}

// HandleBusFrame forwards an incoming bus message to conn's socket and, if
// it was marked parsable, runs the matching post-process hook.
func (r *Router) HandleBusFrame(ctx context.Context, conn Conn, raw []byte) error {
	payload, parsable := codec.Unmark(raw)

	frame, err := codec.Decode(payload)
	if err != nil {
		slog.Error("router: malformed bus frame", "error", err)
		return nil
	}
	if err := conn.SendDirect(frame); err != nil {
		return err
	}
	if !parsable {
		return nil
	}

	hook, ok := r.post[frame.Action]
	if !ok {
		return nil
	}
	if err := hook(ctx, conn, frame); err != nil {
		slog.Error("router: post-hook failed", "action", frame.Action, "error", err)
	}
	return nil
}

func (r *Router) growlTo(conn Conn, message string) error {
	return conn.SendDirect(codec.Frame{Action: "growl", Content: codec.RawString(message)})
}
