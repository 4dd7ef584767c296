// Package message implements the Message Pipeline (spec §4.8): channel
// parsing, persistence, and publication of chat messages and the
// GET_MESSAGES history query.
package message

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/codec"
	"github.com/jycamier/chatfanout/backend/internal/growl"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

// ImageExtractor decodes an inbound image payload into a stored asset URL
// (spec §6, "external interfaces, out of core, contract only"). A nil
// extractor means image uploads are not supported; Send returns a growl if
// an image is attached anyway.
type ImageExtractor interface {
	Extract(ctx context.Context, raw string) (url string, err error)
}

// Subscriptions reports the caller connection's current room subscriptions,
// used to cross-check an `r<roomId>` channel target (spec §4.8). Owned by
// the Connection Supervisor.
type Subscriptions interface {
	IsSubscribed(channel string) bool
}

// Input is the SEND_MESSAGE payload.
type Input struct {
	Content    string
	Channel    string
	ReceiverID *uuid.UUID
	Image      string
}

// Pipeline persists and routes chat messages.
type Pipeline struct {
	store     store.Store
	bus       bus.Bus
	extractor ImageExtractor
	maxSize   int
}

func New(st store.Store, b bus.Bus, extractor ImageExtractor, maxMessageSize int) *Pipeline {
	return &Pipeline{store: st, bus: b, extractor: extractor, maxSize: maxMessageSize}
}

// Send validates the channel against subs, persists the message, and
// publishes the printMessage broadcast. The sender's own identity and
// username are required to build the outbound frame without a second
// store round trip.
func (p *Pipeline) Send(ctx context.Context, sender chatmodel.User, in Input, subs Subscriptions) error {
	if len([]rune(in.Content)) > p.maxSize {
		return growl.New("Message is too long")
	}
	if in.Channel == "" {
		return growl.New("Missing channel")
	}

	kind, target := in.Channel[0], in.Channel[1:]
	targetID, err := uuid.Parse(target)
	if err != nil {
		return growl.New("Invalid channel %s", in.Channel)
	}

	// Only room channels are subscription-checked: a direct message is
	// addressed at the target's own self-channel, which the sender is
	// never subscribed to and needn't be (spec §4.8).
	if kind == 'r' && !subs.IsSubscribed(in.Channel) {
		return growl.New("Access denied for channel %s", in.Channel)
	}

	msg := chatmodel.Message{
		SenderID:    sender.ID,
		Content:     in.Content,
		CreatedAtMs: time.Now().UnixMilli(),
	}

	var receiver *chatmodel.User
	switch kind {
	case 'u':
		msg.ReceiverID = &targetID
		u, err := p.store.GetUser(ctx, targetID)
		if err != nil {
			return fmt.Errorf("message: load receiver: %w", err)
		}
		receiver = &u
	case 'r':
		msg.RoomID = &targetID
	default:
		return growl.New("Invalid channel %s", in.Channel)
	}

	var imageURL string
	if in.Image != "" {
		if p.extractor == nil {
			return growl.New("Image uploads are not supported")
		}
		imageURL, err = p.extractor.Extract(ctx, in.Image)
		if err != nil {
			return fmt.Errorf("message: extract image: %w", err)
		}
		msg.Image = &imageURL
	}

	saved, err := p.store.InsertMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("message: insert: %w", err)
	}

	frame := codec.Frame{
		Action:  "printMessage",
		UserID:  sender.ID.String(),
		Time:    saved.CreatedAtMs,
		ID:      saved.ID,
		Content: codec.RawString(saved.Content),
		Channel: in.Channel,
	}
	if imageURL != "" {
		frame.Image = imageURL
	}
	if receiver != nil {
		frame.ReceiverID = receiver.ID.String()
		frame.ReceiverName = receiver.Username
	}

	encoded, err := codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("message: encode printMessage: %w", err)
	}

	if msg.RoomID != nil {
		return p.bus.Publish(ctx, in.Channel, encoded)
	}

	if err := p.bus.Publish(ctx, "u"+sender.ID.String(), encoded); err != nil {
		return fmt.Errorf("message: publish to sender: %w", err)
	}
	if receiver != nil && receiver.ID != sender.ID {
		if err := p.bus.Publish(ctx, "u"+receiver.ID.String(), encoded); err != nil {
			return fmt.Errorf("message: publish to receiver: %w", err)
		}
	}
	return nil
}

// History runs GET_MESSAGES: at most count messages visible to viewer,
// strictly before headerID when supplied, descending by id.
func (p *Pipeline) History(ctx context.Context, viewer uuid.UUID, headerID *int64, count int) ([]chatmodel.Message, error) {
	if count <= 0 {
		count = 10
	}
	return p.store.FetchMessagesBefore(ctx, store.MessagesBefore{
		HeaderID:  headerID,
		Count:     count,
		VisibleTo: viewer,
	})
}
