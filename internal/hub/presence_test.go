package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

func TestPresence_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	conv, _ := store.FindOrCreate(ctx, "d1", "p1")
	id := conv.ID.Hex()

	now := base.Add(time.Minute)
	p := NewPresence(store, time.Second, zap.NewNop()).WithClock(func() time.Time { return now })

	p.Joined(ctx, id)
	got, _ := store.Get(ctx, id)
	if got.ConnectionStatus != model.StatusConnected || !got.LastActivity.Equal(now) {
		t.Fatalf("after join: %+v", got)
	}

	now = base.Add(2 * time.Minute)
	p.Heartbeat(ctx, id)
	got, _ = store.Get(ctx, id)
	if !got.LastActivity.Equal(now) {
		t.Fatalf("heartbeat did not refresh last_activity: %v", got.LastActivity)
	}

	p.Left(ctx, id, 1)
	got, _ = store.Get(ctx, id)
	if got.ConnectionStatus != model.StatusConnected {
		t.Fatalf("leave with subscribers remaining must keep connected, got %q", got.ConnectionStatus)
	}

	p.Left(ctx, id, 0)
	got, _ = store.Get(ctx, id)
	if got.ConnectionStatus != model.StatusDisconnected {
		t.Fatalf("last leave must disconnect, got %q", got.ConnectionStatus)
	}
}

func TestPresence_StoreErrorsAreSwallowed(t *testing.T) {
	p := NewPresence(seededStore(t), time.Second, zap.NewNop())
	// Unknown ids fail in the store; none of these may panic or block.
	p.Joined(context.Background(), "000000000000000000000000")
	p.Heartbeat(context.Background(), "not-an-id")
	p.Left(context.Background(), "000000000000000000000000", 0)
}
