package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names on the wire.
const (
	EventJoinChat     = "join_chat"
	EventLeaveChat    = "leave_chat"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_read"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventPong         = "pong"
	EventPing         = "ping"
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventError        = "error"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
)

// WsEvent is the frame exchanged over the socket in both directions.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeError rejects a frame that is not a known inbound event or whose payload
// does not parse.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %q", e.Err, e.Event)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
