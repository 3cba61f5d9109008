package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/repo"
)

// Presence mirrors live room membership into the stored connection_status and
// last_activity. Every write is best effort: failures are logged and dropped.
type Presence struct {
	repo    repo.ConversationRepository
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewPresence(repo repo.ConversationRepository, timeout time.Duration, logger *zap.Logger) *Presence {
	return &Presence{
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the clock used to stamp last_activity.
func (p *Presence) WithClock(now func() time.Time) *Presence {
	p.now = now
	return p
}

// Joined marks the conversation connected.
func (p *Presence) Joined(ctx context.Context, conversationID string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.repo.SetConnectionStatus(ctx, conversationID, model.StatusConnected, p.now().UTC()); err != nil {
		p.logger.Warn("failed to mark conversation connected",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// Heartbeat records a heartbeat answer for the conversation a connection is
// joined to.
func (p *Presence) Heartbeat(ctx context.Context, conversationID string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.repo.RecordHeartbeat(ctx, conversationID, p.now().UTC()); err != nil {
		p.logger.Warn("failed to record heartbeat",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// Left marks the conversation disconnected once no live subscriber remains.
func (p *Presence) Left(ctx context.Context, conversationID string, remaining int) {
	if remaining > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.repo.SetConnectionStatus(ctx, conversationID, model.StatusDisconnected, p.now().UTC()); err != nil {
		p.logger.Warn("failed to mark conversation disconnected",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}
