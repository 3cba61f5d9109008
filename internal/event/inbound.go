package event

import (
	"encoding/json"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// Inbound is the closed set of client-to-server events. Only types in this file
// implement it.
type Inbound interface {
	Name() string
	inbound()
}

// Participant identifies who performs a room-scoped action.
type Participant struct {
	ChatID   string           `json:"chat_id"`
	UserID   string           `json:"user_id"`
	UserType model.SenderType `json:"user_type"`
}

type JoinChat struct{ Participant }

type LeaveChat struct{ Participant }

type TypingStart struct{ Participant }

type TypingStop struct{ Participant }

type SendMessage struct {
	ChatID     string           `json:"chat_id"`
	SenderID   string           `json:"sender_id"`
	SenderType model.SenderType `json:"sender_type"`
	Content    string           `json:"content"`
}

type MarkRead struct {
	ChatID     string           `json:"chat_id"`
	ReaderType model.SenderType `json:"reader_type"`
}

// Pong answers a server ping.
type Pong struct{}

func (JoinChat) Name() string    { return EventJoinChat }
func (LeaveChat) Name() string   { return EventLeaveChat }
func (TypingStart) Name() string { return EventTypingStart }
func (TypingStop) Name() string  { return EventTypingStop }
func (SendMessage) Name() string { return EventSendMessage }
func (MarkRead) Name() string    { return EventMarkRead }
func (Pong) Name() string        { return EventPong }

func (JoinChat) inbound()    {}
func (LeaveChat) inbound()   {}
func (TypingStart) inbound() {}
func (TypingStop) inbound()  {}
func (SendMessage) inbound() {}
func (MarkRead) inbound()    {}
func (Pong) inbound()        {}

// Decode turns a received frame into its typed event. Unknown names and
// unparsable payloads come back as *DecodeError.
func Decode(ev WsEvent) (Inbound, error) {
	switch ev.Event {
	case EventJoinChat:
		var p JoinChat
		if err := unmarshalPayload(ev, &p.Participant); err != nil {
			return nil, err
		}
		return p, nil
	case EventLeaveChat:
		var p LeaveChat
		if err := unmarshalPayload(ev, &p.Participant); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypingStart:
		var p TypingStart
		if err := unmarshalPayload(ev, &p.Participant); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypingStop:
		var p TypingStop
		if err := unmarshalPayload(ev, &p.Participant); err != nil {
			return nil, err
		}
		return p, nil
	case EventSendMessage:
		var p SendMessage
		if err := unmarshalPayload(ev, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventMarkRead:
		var p MarkRead
		if err := unmarshalPayload(ev, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPong:
		return Pong{}, nil
	default:
		return nil, &DecodeError{Event: ev.Event, Err: ErrUnknownEvent}
	}
}

func unmarshalPayload(ev WsEvent, v any) error {
	if len(ev.Payload) == 0 {
		return &DecodeError{Event: ev.Event, Err: ErrMalformedPayload}
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return &DecodeError{Event: ev.Event, Err: ErrMalformedPayload}
	}
	return nil
}
