package model

import "time"

// SenderType is the role of a message author relative to its conversation.
type SenderType string

const (
	SenderDoctor SenderType = "doctor"
	SenderUser   SenderType = "user"
)

func (s SenderType) Valid() bool {
	return s == SenderDoctor || s == SenderUser
}

// Counterpart returns the other role of the conversation.
func (s SenderType) Counterpart() SenderType {
	switch s {
	case SenderDoctor:
		return SenderUser
	case SenderUser:
		return SenderDoctor
	default:
		return ""
	}
}

// DeliveryStatus is set to sent at creation and never advanced.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Message is an entry of a conversation's append-only log.
type Message struct {
	MessageID      string         `json:"message_id" bson:"message_id"`
	Content        string         `json:"content" bson:"content"`
	SenderID       string         `json:"sender_id" bson:"sender_id"`
	SenderType     SenderType     `json:"sender_type" bson:"sender_type"`
	Read           bool           `json:"read" bson:"read"`
	DeliveryStatus DeliveryStatus `json:"delivery_status" bson:"delivery_status"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
}
