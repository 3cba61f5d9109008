package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// Ensure interface compliance at compile time
var _ ConversationRepository = (*MemoryConversationRepository)(nil)

// MemoryConversationRepository keeps conversations in process memory. It mirrors
// the Mongo adapter's per-document atomicity with a single lock and hands out
// copies so callers never alias stored state.
type MemoryConversationRepository struct {
	mu     sync.RWMutex
	byID   map[primitive.ObjectID]*model.Conversation
	byPair map[pairKey]primitive.ObjectID
	logger *zap.Logger
	now    func() time.Time
}

type pairKey struct {
	doctorID  string
	patientID string
}

func NewMemoryConversationRepository(logger *zap.Logger) *MemoryConversationRepository {
	return &MemoryConversationRepository{
		byID:   make(map[primitive.ObjectID]*model.Conversation),
		byPair: make(map[pairKey]primitive.ObjectID),
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to stamp newly created conversations.
func (r *MemoryConversationRepository) WithClock(now func() time.Time) *MemoryConversationRepository {
	r.now = now
	return r
}

func (r *MemoryConversationRepository) FindOrCreate(ctx context.Context, doctorID, patientID string) (*model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, translate("find or create conversation", err)
	}

	key := pairKey{doctorID: doctorID, patientID: patientID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPair[key]; ok {
		return clone(r.byID[id]), nil
	}

	conv := model.NewConversation(doctorID, patientID, r.now().UTC().Truncate(time.Millisecond))
	conv.ID = primitive.NewObjectID()
	r.byID[conv.ID] = &conv
	r.byPair[key] = conv.ID

	r.logger.Debug("conversation created",
		zap.String("conversation_id", conv.ID.Hex()),
		zap.String("doctor_id", doctorID),
		zap.String("patient_id", patientID),
	)
	return clone(&conv), nil
}

func (r *MemoryConversationRepository) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var out *model.Conversation
	err := r.read(ctx, conversationID, func(c *model.Conversation) {
		out = clone(c)
	})
	return out, err
}

func (r *MemoryConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg model.Message) error {
	return r.write(ctx, conversationID, func(c *model.Conversation) {
		for _, existing := range c.Messages {
			if msg.MessageID != "" && existing.MessageID == msg.MessageID {
				return
			}
		}
		c.Messages = append(c.Messages, msg)
		c.LastMessageAt = later(c.LastMessageAt, msg.CreatedAt)
		c.LastActivity = later(c.LastActivity, msg.CreatedAt)
	})
}

func (r *MemoryConversationRepository) SetConnectionStatus(ctx context.Context, conversationID string, status model.ConnectionStatus, now time.Time) error {
	return r.write(ctx, conversationID, func(c *model.Conversation) {
		c.ConnectionStatus = status
		c.LastActivity = later(c.LastActivity, now)
	})
}

func (r *MemoryConversationRepository) RecordHeartbeat(ctx context.Context, conversationID string, now time.Time) error {
	return r.write(ctx, conversationID, func(c *model.Conversation) {
		c.ConnectionStatus = model.StatusConnected
		c.LastActivity = later(c.LastActivity, now)
	})
}

func (r *MemoryConversationRepository) MarkRead(ctx context.Context, conversationID string, reader model.SenderType) (bool, error) {
	from := reader.Counterpart()
	changed := false
	err := r.write(ctx, conversationID, func(c *model.Conversation) {
		for i := range c.Messages {
			if c.Messages[i].SenderType == from && !c.Messages[i].Read {
				c.Messages[i].Read = true
				changed = true
			}
		}
	})
	return changed, err
}

func (r *MemoryConversationRepository) ListByDoctor(ctx context.Context, doctorID string) ([]model.Conversation, error) {
	return r.list(ctx, func(c *model.Conversation) bool { return c.DoctorID == doctorID })
}

func (r *MemoryConversationRepository) ListByUser(ctx context.Context, patientID string) ([]model.Conversation, error) {
	return r.list(ctx, func(c *model.Conversation) bool { return c.PatientID == patientID })
}

func (r *MemoryConversationRepository) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	stale, err := r.list(ctx, func(c *model.Conversation) bool { return isStale(c, cutoff) })
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(stale))
	for _, c := range stale {
		ids = append(ids, c.ID.Hex())
	}
	return ids, nil
}

func (r *MemoryConversationRepository) DisconnectStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	changed := false
	err := r.write(ctx, conversationID, func(c *model.Conversation) {
		if isStale(c, cutoff) {
			c.ConnectionStatus = model.StatusDisconnected
			changed = true
		}
	})
	return changed, err
}

func (r *MemoryConversationRepository) read(ctx context.Context, conversationID string, fn func(c *model.Conversation)) error {
	if err := ctx.Err(); err != nil {
		return translate("read conversation", err)
	}
	id, err := parseID(conversationID)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return errConversationNotFound
	}
	fn(c)
	return nil
}

func (r *MemoryConversationRepository) write(ctx context.Context, conversationID string, fn func(c *model.Conversation)) error {
	if err := ctx.Err(); err != nil {
		return translate("update conversation", err)
	}
	id, err := parseID(conversationID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return errConversationNotFound
	}
	fn(c)
	return nil
}

func (r *MemoryConversationRepository) list(ctx context.Context, match func(c *model.Conversation) bool) ([]model.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, translate("list conversations", err)
	}

	r.mu.RLock()
	out := make([]model.Conversation, 0)
	for _, c := range r.byID {
		if match(c) {
			out = append(out, *clone(c))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func isStale(c *model.Conversation, cutoff time.Time) bool {
	return c.ConnectionStatus != model.StatusDisconnected && c.LastActivity.Before(cutoff)
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func clone(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Messages = make([]model.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}
