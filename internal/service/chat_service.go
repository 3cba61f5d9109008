package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/apperror"
	"github.com/abhigit-saha/hack36-sub000/internal/event"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/ratelimit"
	"github.com/abhigit-saha/hack36-sub000/internal/repo"
)

// MaxContentLength bounds a single message, in characters.
const MaxContentLength = 5000

// Broadcaster fans an event out to the live subscribers of a conversation.
// Delivery is best effort; the return value is the number of subscribers reached.
type Broadcaster interface {
	Broadcast(conversationID string, ev event.Outbound, excludeID string) int
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	SenderType     model.SenderType
	Content        string
}

type TypingInput struct {
	ConversationID string
	UserID         string
	UserType       model.SenderType
}

// ChatService holds the business rules shared by the socket and HTTP paths.
type ChatService interface {
	InitializeConversation(ctx context.Context, doctorID, patientID string) (*model.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID string, reader model.SenderType) (bool, error)
	ListForDoctor(ctx context.Context, doctorID string) ([]model.ConversationSummary, error)
	ListForUser(ctx context.Context, patientID string) ([]model.ConversationSummary, error)
	Typing(ctx context.Context, in TypingInput, active bool, excludeID string) error
}

type chatService struct {
	repo        repo.ConversationRepository
	broadcaster Broadcaster
	limiter     ratelimit.Limiter
	logger      *zap.Logger
	now         func() time.Time
}

// NewChatService wires the pipeline. broadcaster may be nil when no live socket
// registry is reachable; limiter may be nil to disable rate limiting.
func NewChatService(repo repo.ConversationRepository, broadcaster Broadcaster, limiter ratelimit.Limiter, logger *zap.Logger) ChatService {
	if limiter == nil {
		limiter = ratelimit.Noop()
	}
	return &chatService{
		repo:        repo,
		broadcaster: broadcaster,
		limiter:     limiter,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *chatService) InitializeConversation(ctx context.Context, doctorID, patientID string) (*model.Conversation, error) {
	doctorID, patientID = strings.TrimSpace(doctorID), strings.TrimSpace(patientID)
	if doctorID == "" || patientID == "" {
		return nil, apperror.Validation("doctor_id and patient_id are required")
	}
	if doctorID == patientID {
		return nil, apperror.Validation("doctor_id and patient_id must differ")
	}

	return s.repo.FindOrCreate(ctx, doctorID, patientID)
}

func (s *chatService) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, apperror.Validation("chat_id is required")
	}
	return s.repo.Get(ctx, conversationID)
}

// SendMessage validates, persists, then broadcasts. Nothing is broadcast unless
// the append succeeded.
func (s *chatService) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	if err := validateSend(in); err != nil {
		return nil, err
	}

	if !s.allow(ctx, "send:"+in.SenderID) {
		return nil, apperror.RateLimited("too many messages, slow down")
	}

	conv, err := s.repo.Get(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(in.SenderID, in.SenderType) {
		return nil, apperror.Validation("sender is not the " + string(in.SenderType) + " of this conversation")
	}

	msg := model.Message{
		MessageID:      uuid.NewString(),
		Content:        in.Content,
		SenderID:       in.SenderID,
		SenderType:     in.SenderType,
		Read:           false,
		DeliveryStatus: model.DeliverySent,
		// Stored timestamps have millisecond precision.
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.repo.AppendMessage(ctx, in.ConversationID, msg); err != nil {
		s.logger.Error("message not persisted, skipping broadcast",
			zap.String("conversation_id", in.ConversationID),
			zap.String("sender_id", in.SenderID),
			zap.Error(err),
		)
		return nil, err
	}

	delivered := s.broadcast(in.ConversationID, event.NewMessage{ChatID: in.ConversationID, Message: msg}, "")
	s.logger.Debug("message sent",
		zap.String("conversation_id", in.ConversationID),
		zap.String("message_id", msg.MessageID),
		zap.Int("delivered", delivered),
	)
	return &msg, nil
}

// MarkRead flips the reader's unread messages and announces it. A call with
// nothing to flip is silent.
func (s *chatService) MarkRead(ctx context.Context, conversationID string, reader model.SenderType) (bool, error) {
	if conversationID == "" {
		return false, apperror.Validation("chat_id is required")
	}
	if !reader.Valid() {
		return false, apperror.Validation("reader_type must be doctor or user")
	}

	changed, err := s.repo.MarkRead(ctx, conversationID, reader)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	s.broadcast(conversationID, event.MessagesRead{
		ChatID:     conversationID,
		ReaderType: reader,
		Timestamp:  s.now().UTC(),
	}, "")
	return true, nil
}

func (s *chatService) ListForDoctor(ctx context.Context, doctorID string) ([]model.ConversationSummary, error) {
	if doctorID == "" {
		return nil, apperror.Validation("doctor id is required")
	}
	convs, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return Map(convs, func(c model.Conversation) model.ConversationSummary {
		return summarize(&c, model.SenderDoctor)
	}), nil
}

func (s *chatService) ListForUser(ctx context.Context, patientID string) ([]model.ConversationSummary, error) {
	if patientID == "" {
		return nil, apperror.Validation("user id is required")
	}
	convs, err := s.repo.ListByUser(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return Map(convs, func(c model.Conversation) model.ConversationSummary {
		return summarize(&c, model.SenderUser)
	}), nil
}

// Typing relays a transient hint to the room. Nothing is stored.
func (s *chatService) Typing(ctx context.Context, in TypingInput, active bool, excludeID string) error {
	if in.ConversationID == "" || in.UserID == "" {
		return apperror.Validation("chat_id and user_id are required")
	}
	if !in.UserType.Valid() {
		return apperror.Validation("user_type must be doctor or user")
	}

	s.broadcast(in.ConversationID, event.Typing{
		Participant: event.Participant{
			ChatID:   in.ConversationID,
			UserID:   in.UserID,
			UserType: in.UserType,
		},
		Active: active,
	}, excludeID)
	return nil
}

func (s *chatService) broadcast(conversationID string, ev event.Outbound, excludeID string) int {
	if s.broadcaster == nil {
		return 0
	}
	return s.broadcaster.Broadcast(conversationID, ev, excludeID)
}

// allow fails open on limiter errors.
func (s *chatService) allow(ctx context.Context, key string) bool {
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, allowing", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

func validateSend(in SendMessageInput) error {
	switch {
	case in.ConversationID == "":
		return apperror.Validation("chat_id is required")
	case in.SenderID == "":
		return apperror.Validation("sender_id is required")
	case !in.SenderType.Valid():
		return apperror.Validation("sender_type must be doctor or user")
	case strings.TrimSpace(in.Content) == "":
		return apperror.Validation("content must not be empty")
	case utf8.RuneCountInString(in.Content) > MaxContentLength:
		return apperror.Validation("content is too long")
	}
	return nil
}

func summarize(c *model.Conversation, reader model.SenderType) model.ConversationSummary {
	from := reader.Counterpart()
	unread := Filter(c.Messages, func(m model.Message) bool {
		return m.SenderType == from && !m.Read
	})

	return model.ConversationSummary{
		ID:               c.ID.Hex(),
		DoctorID:         c.DoctorID,
		PatientID:        c.PatientID,
		LastMessage:      c.LastMessage(),
		UnreadCount:      len(unread),
		ConnectionStatus: c.ConnectionStatus,
		LastMessageAt:    c.LastMessageAt,
		LastActivity:     c.LastActivity,
		IsActive:         c.IsActive,
	}
}
