// Package codec (de)serializes the wire frames exchanged with clients and
// encodes the parsable-prefix discipline used to mark frames published to
// the bus that need a server-side post-hook on arrival (spec §4.1, §9).
package codec

import (
	"encoding/json"
	"fmt"
)

// parsablePrefix is the sentinel byte prepended to a marked frame's raw
// JSON before it is published to the bus. Chosen to mirror the original
// system's literal byte-prefix wire encoding.
const parsablePrefix = 'p'

// Frame is the JSON shape exchanged with clients, covering every field any
// action uses. Unused fields are omitted by their `omitempty` tag so a
// given action's frame only carries what it needs.
type Frame struct {
	Action       string          `json:"action"`
	Handler      string          `json:"handler,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Channel      string          `json:"channel,omitempty"`
	RoomID       string          `json:"roomId,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	ReceiverID   string          `json:"receiverId,omitempty"`
	ReceiverName string          `json:"receiverName,omitempty"`
	Time         int64           `json:"time,omitempty"`
	ID           int64           `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Users        []string        `json:"users,omitempty"`
	Image        string          `json:"image,omitempty"`
	Sex          *int            `json:"sex,omitempty"`
	Type         string          `json:"type,omitempty"`
	Private      bool            `json:"private,omitempty"`
}

// Decode parses a raw inbound client payload into a Frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if len(raw) == 0 {
		return f, fmt.Errorf("codec: empty payload")
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("codec: decode frame: %w", err)
	}
	if f.Action == "" {
		return f, fmt.Errorf("codec: frame missing action")
	}
	return f, nil
}

// RawString wraps a plain string as Content, matching how actions such as
// printMessage carry their text in the generic `content` field.
func RawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Raw marshals an arbitrary value (e.g. a message history slice) into
// Content.
func Raw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode content: %w", err)
	}
	return b, nil
}

// Encode serializes a Frame for delivery to a client or publication on the bus.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("codec: encode frame: %w", err)
	}
	return data, nil
}

// Mark prefixes an encoded frame with the parsable sentinel, instructing
// every receiving node to run the action's post-process hook after
// forwarding the frame to its local clients.
func Mark(data []byte) []byte {
	marked := make([]byte, 0, len(data)+1)
	marked = append(marked, parsablePrefix)
	marked = append(marked, data...)
	return marked
}

// Unmark strips the parsable sentinel if present and reports whether it was
// there. Frames without the sentinel are plain-forwarded with no post-hook.
func Unmark(data []byte) (payload []byte, parsable bool) {
	if len(data) > 0 && data[0] == parsablePrefix {
		return data[1:], true
	}
	return data, false
}
