// Package stream defines the typed events of a streamed agent reply, a
// decoder that turns the plain-text HTTP body back into events, and a client
// reducer that applies those events to conversation state.
package stream

import (
	"encoding/json"
	"fmt"
)

// HeaderChatID carries the server-resolved conversation id. It is written
// before the first body byte.
const HeaderChatID = "x-chat-id"

// Event is one signal of a streamed reply.
type Event interface {
	kind() string
}

// Thinking signals that the reply has started but no content is known yet.
type Thinking struct{}

// ContentDelta is an opaque fragment of reply text. Order is significant.
type ContentDelta struct {
	Text string
}

// Done terminates a successful stream.
type Done struct {
	ConversationID string
}

// Error terminates a failed stream.
type Error struct {
	Reason string
}

func (Thinking) kind() string     { return "thinking" }
func (ContentDelta) kind() string { return "content" }
func (Done) kind() string         { return "done" }
func (Error) kind() string        { return "error" }

func (e Error) Error() string { return e.Reason }

// Frame is the JSON shape of an event on the WebSocket relay.
type Frame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// ToFrame converts an event for the wire.
func ToFrame(e Event) Frame {
	f := Frame{Type: e.kind()}
	switch v := e.(type) {
	case ContentDelta:
		f.Data = v.Text
	case Done:
		f.Data = v.ConversationID
	case Error:
		f.Data = v.Reason
	}
	return f
}

// FromFrame converts a wire frame back into an event.
func FromFrame(f Frame) (Event, error) {
	switch f.Type {
	case "thinking":
		return Thinking{}, nil
	case "content":
		return ContentDelta{Text: f.Data}, nil
	case "done":
		return Done{ConversationID: f.Data}, nil
	case "error":
		return Error{Reason: f.Data}, nil
	}
	return nil, fmt.Errorf("stream: unknown frame type %q", f.Type)
}

// MarshalEvent renders e as a JSON frame.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(ToFrame(e))
}
