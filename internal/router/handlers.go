package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/codec"
	"github.com/jycamier/chatfanout/backend/internal/growl"
	"github.com/jycamier/chatfanout/backend/internal/message"
)

type getMessagesContent struct {
	HeaderID *int64 `json:"headerId"`
	Count    int    `json:"count"`
}

func (r *Router) handleGetMessages(ctx context.Context, conn Conn, frame codec.Frame) error {
	var in getMessagesContent
	in.Count = 10
	if len(frame.Content) > 0 {
		if err := json.Unmarshal(frame.Content, &in); err != nil {
			return growl.New("Malformed getMessages request")
		}
	}
	if in.Count <= 0 {
		in.Count = 10
	}

	msgs, err := r.messages.History(ctx, conn.User().ID, in.HeaderID, in.Count)
	if err != nil {
		return fmt.Errorf("router: get messages: %w", err)
	}

	content, err := codec.Raw(msgs)
	if err != nil {
		return fmt.Errorf("router: encode messages content: %w", err)
	}

	return conn.SendDirect(codec.Frame{Action: "messages", Content: content})
}

func (r *Router) handleSendMessage(ctx context.Context, conn Conn, frame codec.Frame) error {
	var receiverID *uuid.UUID
	if frame.ReceiverID != "" {
		id, err := uuid.Parse(frame.ReceiverID)
		if err != nil {
			return growl.New("Invalid receiverId")
		}
		receiverID = &id
	}

	in := message.Input{
		Content:    jsonString(frame.Content),
		Channel:    frame.Channel,
		ReceiverID: receiverID,
		Image:      frame.Image,
	}
	return r.messages.Send(ctx, conn.User(), in, conn)
}

func (r *Router) handleCall(ctx context.Context, conn Conn, frame codec.Frame) error {
	if frame.ReceiverID == "" {
		return growl.New("Missing receiverId")
	}
	receiverID, err := uuid.Parse(frame.ReceiverID)
	if err != nil {
		return growl.New("Invalid receiverId")
	}

	out := codec.Frame{
		Action:  "call",
		UserID:  conn.User().ID.String(),
		Content: frame.Content,
		Type:    frame.Type,
	}
	encoded, err := codec.Encode(out)
	if err != nil {
		return fmt.Errorf("router: encode call frame: %w", err)
	}
	return r.publishTo(ctx, "u"+receiverID.String(), encoded)
}

func (r *Router) handleCreateDirectChannel(ctx context.Context, conn Conn, frame codec.Frame) error {
	if frame.UserID == "" {
		return growl.New("Missing userId")
	}
	targetID, err := uuid.Parse(frame.UserID)
	if err != nil {
		return growl.New("Invalid userId")
	}
	_, err = r.rooms.CreateDirect(ctx, conn.User().ID, targetID)
	return err
}

func (r *Router) handleCreateRoomChannel(ctx context.Context, conn Conn, frame codec.Frame) error {
	_, err := r.rooms.CreatePublic(ctx, conn.User().ID, frame.Name)
	return err
}

func (r *Router) handleInviteUser(ctx context.Context, conn Conn, frame codec.Frame) error {
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return growl.New("Invalid roomId")
	}
	if !conn.IsSubscribed("r" + roomID.String()) {
		return growl.New("Access denied for channel r%s", roomID)
	}
	userID, err := uuid.Parse(frame.UserID)
	if err != nil {
		return growl.New("Invalid userId")
	}

	invited, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("router: invite: load invited user: %w", err)
	}

	return r.rooms.Invite(ctx, roomID, userID, invited.Username, invited.Sex)
}

func (r *Router) handleDeleteRoom(ctx context.Context, conn Conn, frame codec.Frame) error {
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return growl.New("Invalid roomId")
	}
	if !conn.IsSubscribed("r" + roomID.String()) {
		return growl.New("Access denied for channel r%s", roomID)
	}
	return r.rooms.Delete(ctx, conn.User().ID, roomID)
}

// postJoinRoom runs after addRoom / addDirectChannel / inviteUser loop
// back: it subscribes this connection to the new room channel and performs
// a presence join, broadcasting LOGIN or REFRESH_USER per spec §4.4.
func (r *Router) postJoinRoom(ctx context.Context, conn Conn, frame codec.Frame) error {
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return fmt.Errorf("router: post-join: invalid roomId: %w", err)
	}
	channel := "r" + roomID.String()
	if err := conn.Subscribe(ctx, channel); err != nil {
		return fmt.Errorf("router: post-join: subscribe: %w", err)
	}
	return r.JoinRoom(ctx, conn, roomID)
}

// JoinRoom writes conn's presence field for roomID and broadcasts LOGIN (or
// sends a private setOnlineUsers refresh on a multi-tab join). Exported so
// the Connection Supervisor can also call it directly for the rooms a
// socket already belongs to at handshake time (spec §4.9).
func (r *Router) JoinRoom(ctx context.Context, conn Conn, roomID uuid.UUID) error {
	online, err := r.presence.Join(ctx, roomID, conn.ConnID(), conn.User().ID)
	if err != nil {
		return fmt.Errorf("router: presence join: %w", err)
	}

	if online.IsLogin {
		content, err := codec.Raw(online.UserIDs)
		if err != nil {
			return err
		}
		out, err := codec.Encode(codec.Frame{Action: "addOnlineUser", Channel: "r" + roomID.String(), Content: content})
		if err != nil {
			return err
		}
		return r.publishTo(ctx, "r"+roomID.String(), out)
	}

	content, err := codec.Raw(online.UserIDs)
	if err != nil {
		return err
	}
	return conn.SendDirect(codec.Frame{Action: "setOnlineUsers", Channel: "r" + roomID.String(), Content: content})
}

// postLeaveRoom runs after deleteRoom loops back: unsubscribe and clear
// presence, broadcasting LOGOUT if this was the user's last connection in
// the room.
func (r *Router) postLeaveRoom(ctx context.Context, conn Conn, frame codec.Frame) error {
	roomID, err := uuid.Parse(frame.RoomID)
	if err != nil {
		return fmt.Errorf("router: post-leave: invalid roomId: %w", err)
	}
	channel := "r" + roomID.String()
	if err := conn.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("router: post-leave: unsubscribe: %w", err)
	}
	return r.LeaveRoom(ctx, conn, roomID)
}

// LeaveRoom removes conn's presence field for roomID and broadcasts LOGOUT
// if it was the user's last live connection there. Exported so the
// Connection Supervisor can run the same sweep on socket close (spec
// §4.9).
func (r *Router) LeaveRoom(ctx context.Context, conn Conn, roomID uuid.UUID) error {
	online, isLast, err := r.presence.Leave(ctx, roomID, conn.ConnID(), conn.User().ID)
	if err != nil {
		return fmt.Errorf("router: presence leave: %w", err)
	}
	if !isLast {
		return nil
	}

	content, err := codec.Raw(online.UserIDs)
	if err != nil {
		return err
	}
	out, err := codec.Encode(codec.Frame{Action: "logout", Channel: "r" + roomID.String(), Content: content})
	if err != nil {
		return err
	}
	return r.publishTo(ctx, "r"+roomID.String(), out)
}

// jsonString unwraps a Content field that carries a JSON string literal
// (SEND_MESSAGE's `content`). A Content that is not a valid JSON string is
// passed through verbatim rather than rejected, since other actions reuse
// the same field for structured payloads.
func jsonString(raw []byte) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
