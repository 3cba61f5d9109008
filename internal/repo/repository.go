package repo

import (
	"context"
	"time"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// ConversationRepository is the sole owner of persisted conversation state. Every
// mutation touches a single document.
//
// Errors: apperror.ErrNotFound when the conversation id is unknown,
// apperror.ErrStoreUnavailable for infrastructure failures.
type ConversationRepository interface {
	// FindOrCreate returns the conversation of the pair, creating it on first
	// contact. Concurrent callers converge on one record.
	FindOrCreate(ctx context.Context, doctorID, patientID string) (*model.Conversation, error)
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	// AppendMessage pushes msg to the end of the log and moves last_message_at
	// forward. Re-appending the same MessageID is a no-op.
	AppendMessage(ctx context.Context, conversationID string, msg model.Message) error
	SetConnectionStatus(ctx context.Context, conversationID string, status model.ConnectionStatus, now time.Time) error
	// RecordHeartbeat refreshes last_activity and marks the conversation connected.
	RecordHeartbeat(ctx context.Context, conversationID string, now time.Time) error
	// MarkRead flips read on every unread message sent by the counterpart of
	// reader. It reports whether anything changed.
	MarkRead(ctx context.Context, conversationID string, reader model.SenderType) (bool, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]model.Conversation, error)
	ListByUser(ctx context.Context, patientID string) ([]model.Conversation, error)
	// ListStale returns ids of conversations not disconnected whose last_activity
	// is before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)
	// DisconnectStale marks the conversation disconnected if it is still stale
	// relative to cutoff. It reports whether the record was changed.
	DisconnectStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error)
}
