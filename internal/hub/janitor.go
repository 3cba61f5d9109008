package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/repo"
)

type JanitorOptions struct {
	Interval    time.Duration // time between sweeps
	StaleAfter  time.Duration // inactivity window after which a conversation is reaped
	Concurrency int           // max conversations updated at once
	ItemTimeout time.Duration // bound on a single store write
}

// Janitor periodically flips conversations that still look connected but have
// been silent longer than StaleAfter to disconnected. It covers disconnects the
// presence tracker never observed.
type Janitor struct {
	repo   repo.ConversationRepository
	opts   JanitorOptions
	now    func() time.Time
	logger *zap.Logger

	statsMu sync.RWMutex
	stats   model.JanitorStats

	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(repo repo.ConversationRepository, opts JanitorOptions, logger *zap.Logger) *Janitor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Janitor{
		repo:   repo,
		opts:   opts,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the clock the sweep computes its cutoff from.
func (j *Janitor) WithClock(now func() time.Time) *Janitor {
	j.now = now
	return j
}

// Start runs a sweep every Interval until Stop is called or ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()

	j.logger.Info("janitor started",
		zap.Duration("interval", j.opts.Interval),
		zap.Duration("stale_after", j.opts.StaleAfter),
	)
}

func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.logger.Info("janitor stopped")
}

// Sweep runs one staleness pass and returns the number of conversations reaped.
// A failing write is logged and does not hold up the others.
func (j *Janitor) Sweep(ctx context.Context) int {
	now := j.now().UTC()
	cutoff := now.Add(-j.opts.StaleAfter)

	listCtx, cancel := context.WithTimeout(ctx, j.itemTimeout())
	ids, err := j.repo.ListStale(listCtx, cutoff)
	cancel()
	if err != nil {
		j.logger.Error("staleness scan failed", zap.Error(err))
		j.record(now, 0)
		return 0
	}

	var reaped atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.opts.Concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, j.itemTimeout())
			defer cancel()

			changed, err := j.repo.DisconnectStale(itemCtx, id, cutoff)
			if err != nil {
				j.logger.Warn("failed to reap stale conversation",
					zap.String("conversation_id", id),
					zap.Error(err),
				)
				return nil
			}
			if changed {
				reaped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(reaped.Load())
	j.record(now, n)
	if n > 0 {
		j.logger.Info("reaped stale conversations", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}

// Stats returns the outcome of the most recent sweep.
func (j *Janitor) Stats() model.JanitorStats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.stats
}

func (j *Janitor) record(at time.Time, reaped int) {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	j.stats.LastRunAt = at.Format(time.RFC3339)
	j.stats.LastReaped = reaped
	j.stats.TotalReaped += reaped
}

func (j *Janitor) itemTimeout() time.Duration {
	if j.opts.ItemTimeout > 0 {
		return j.opts.ItemTimeout
	}
	return 5 * time.Second
}
