package event

import (
	"encoding/json"
	"time"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// Outbound is the closed set of server-to-client events.
type Outbound interface {
	Name() string
	outbound()
}

type NewMessage struct {
	ChatID  string        `json:"chat_id"`
	Message model.Message `json:"message"`
}

type MessagesRead struct {
	ChatID     string           `json:"chat_id"`
	ReaderType model.SenderType `json:"reader_type"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Presence announces a participant entering or leaving a room.
type Presence struct {
	ChatID    string           `json:"chat_id"`
	UserID    string           `json:"user_id"`
	UserType  model.SenderType `json:"user_type"`
	Timestamp time.Time        `json:"timestamp"`
}

type UserJoined struct{ Presence }

type UserLeft struct{ Presence }

// Typing relays a typing hint exactly as the sender described it.
type Typing struct {
	Participant
	Active bool `json:"-"`
}

type Ping struct{}

type Error struct {
	Message string `json:"message"`
}

func (NewMessage) Name() string   { return EventNewMessage }
func (MessagesRead) Name() string { return EventMessagesRead }
func (UserJoined) Name() string   { return EventUserJoined }
func (UserLeft) Name() string     { return EventUserLeft }
func (Ping) Name() string         { return EventPing }
func (Error) Name() string        { return EventError }

func (t Typing) Name() string {
	if t.Active {
		return EventTypingStart
	}
	return EventTypingStop
}

func (NewMessage) outbound()   {}
func (MessagesRead) outbound() {}
func (UserJoined) outbound()   {}
func (UserLeft) outbound()     {}
func (Typing) outbound()       {}
func (Ping) outbound()         {}
func (Error) outbound()        {}

// Encode wraps an outbound event into its wire frame.
func Encode(o Outbound) (WsEvent, error) {
	var body any
	switch v := o.(type) {
	case NewMessage, MessagesRead, Error:
		body = v
	case UserJoined:
		body = v.Presence
	case UserLeft:
		body = v.Presence
	case Typing:
		body = v.Participant
	case Ping:
		return WsEvent{Event: EventPing}, nil
	default:
		return WsEvent{}, &DecodeError{Event: o.Name(), Err: ErrUnknownEvent}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: o.Name(), Payload: payload}, nil
}
