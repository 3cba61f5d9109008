package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConnectionStatus is the coarse liveness of a conversation.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusIdle         ConnectionStatus = "idle"
)

// DefaultSessionTimeout is stored on every new conversation. The janitor uses the
// configured global staleness window instead.
const DefaultSessionTimeout = 30 * time.Minute

// Conversation is the one chat thread between a doctor and a patient.
type Conversation struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DoctorID         string             `json:"doctor_id" bson:"doctor_id"`
	PatientID        string             `json:"patient_id" bson:"patient_id"`
	Messages         []Message          `json:"messages" bson:"messages"`
	IsActive         bool               `json:"is_active" bson:"is_active"`
	LastMessageAt    time.Time          `json:"last_message_at" bson:"last_message_at"`
	ConnectionStatus ConnectionStatus   `json:"connection_status" bson:"connection_status"`
	LastActivity     time.Time          `json:"last_activity" bson:"last_activity"`
	SessionTimeout   time.Duration      `json:"session_timeout" bson:"session_timeout"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}

// NewConversation returns the record inserted on first contact of a pair.
func NewConversation(doctorID, patientID string, now time.Time) Conversation {
	return Conversation{
		DoctorID:         doctorID,
		PatientID:        patientID,
		Messages:         []Message{},
		IsActive:         true,
		LastMessageAt:    now,
		ConnectionStatus: StatusDisconnected,
		LastActivity:     now,
		SessionTimeout:   DefaultSessionTimeout,
		CreatedAt:        now,
	}
}

// ParticipantID returns the id holding the given role in this conversation.
func (c *Conversation) ParticipantID(role SenderType) string {
	switch role {
	case SenderDoctor:
		return c.DoctorID
	case SenderUser:
		return c.PatientID
	default:
		return ""
	}
}

// IsParticipant reports whether id holds role in this conversation.
func (c *Conversation) IsParticipant(id string, role SenderType) bool {
	return id != "" && c.ParticipantID(role) == id
}

// LastMessage returns the most recent message or nil for an empty log.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}

// ConversationSummary is one entry of a doctor's or patient's conversation list.
type ConversationSummary struct {
	ID               string           `json:"id"`
	DoctorID         string           `json:"doctor_id"`
	PatientID        string           `json:"patient_id"`
	LastMessage      *Message         `json:"last_message"`
	UnreadCount      int              `json:"unread_count"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	LastMessageAt    time.Time        `json:"last_message_at"`
	LastActivity     time.Time        `json:"last_activity"`
	IsActive         bool             `json:"is_active"`
}
