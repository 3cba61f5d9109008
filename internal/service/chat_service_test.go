package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/apperror"
	"github.com/abhigit-saha/hack36-sub000/internal/event"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/repo"
)

type recordedBroadcast struct {
	conversationID string
	ev             event.Outbound
	excludeID      string
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []recordedBroadcast
}

func (b *recordingBroadcaster) Broadcast(conversationID string, ev event.Outbound, excludeID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, recordedBroadcast{conversationID, ev, excludeID})
	return 1
}

func (b *recordingBroadcaster) snapshot() []recordedBroadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedBroadcast(nil), b.calls...)
}

type stubLimiter struct {
	allow bool
	err   error
}

func (l stubLimiter) Allow(context.Context, string) (bool, error) {
	return l.allow, l.err
}

// failingAppendRepo behaves like the memory store except that appends fail.
type failingAppendRepo struct {
	*repo.MemoryConversationRepository
}

func (failingAppendRepo) AppendMessage(context.Context, string, model.Message) error {
	return apperror.StoreUnavailable("append message", errors.New("connection reset"))
}

func newTestService(t *testing.T) (*chatService, *repo.MemoryConversationRepository, *recordingBroadcaster) {
	t.Helper()
	created := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemoryConversationRepository(zap.NewNop()).WithClock(func() time.Time { return created })
	b := &recordingBroadcaster{}
	svc := NewChatService(store, b, nil, zap.NewNop()).(*chatService)
	return svc, store, b
}

func TestInitializeConversation_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.InitializeConversation(ctx, "d1", "p1")
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	second, err := svc.InitializeConversation(ctx, "d1", "p1")
	if err != nil {
		t.Fatalf("initialize again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same conversation, got %s and %s", first.ID.Hex(), second.ID.Hex())
	}
	if len(second.Messages) != 0 || !second.IsActive {
		t.Fatalf("unexpected new conversation state: %+v", second)
	}
}

func TestInitializeConversation_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	cases := []struct{ doctor, patient string }{
		{"", "p1"},
		{"d1", ""},
		{"  ", "p1"},
		{"same", "same"},
	}
	for _, tc := range cases {
		_, err := svc.InitializeConversation(context.Background(), tc.doctor, tc.patient)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("InitializeConversation(%q, %q) = %v, want validation error", tc.doctor, tc.patient, err)
		}
	}
}

func TestSendMessage_PersistsThenBroadcasts(t *testing.T) {
	svc, store, b := newTestService(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	svc.now = func() time.Time { return fixed }

	conv, _ := svc.InitializeConversation(ctx, "d1", "p1")
	id := conv.ID.Hex()

	msg, err := svc.SendMessage(ctx, SendMessageInput{
		ConversationID: id,
		SenderID:       "p1",
		SenderType:     model.SenderUser,
		Content:        "I have a fever",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.MessageID == "" || msg.Read || msg.DeliveryStatus != model.DeliverySent {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !msg.CreatedAt.Equal(fixed.Truncate(time.Millisecond)) {
		t.Fatalf("created_at = %v, want millisecond precision of %v", msg.CreatedAt, fixed)
	}

	stored, _ := store.Get(ctx, id)
	if len(stored.Messages) != 1 || stored.Messages[0].MessageID != msg.MessageID {
		t.Fatalf("message not persisted: %+v", stored.Messages)
	}
	if !stored.LastMessageAt.Equal(msg.CreatedAt) {
		t.Fatalf("last_message_at = %v, want %v", stored.LastMessageAt, msg.CreatedAt)
	}

	calls := b.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(calls))
	}
	nm, ok := calls[0].ev.(event.NewMessage)
	if !ok {
		t.Fatalf("broadcast %T, want event.NewMessage", calls[0].ev)
	}
	if nm.ChatID != id || nm.Message.MessageID != msg.MessageID || calls[0].excludeID != "" {
		t.Fatalf("unexpected broadcast: %+v", calls[0])
	}
}

func TestSendMessage_NoBroadcastOnStoreFailure(t *testing.T) {
	store := repo.NewMemoryConversationRepository(zap.NewNop())
	conv, _ := store.FindOrCreate(context.Background(), "d1", "p1")
	b := &recordingBroadcaster{}
	svc := NewChatService(failingAppendRepo{store}, b, nil, zap.NewNop())

	_, err := svc.SendMessage(context.Background(), SendMessageInput{
		ConversationID: conv.ID.Hex(),
		SenderID:       "d1",
		SenderType:     model.SenderDoctor,
		Content:        "take rest",
	})
	if !errors.Is(err, apperror.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if n := len(b.snapshot()); n != 0 {
		t.Fatalf("expected no broadcast, got %d", n)
	}
}

func TestSendMessage_Rejections(t *testing.T) {
	svc, store, b := newTestService(t)
	ctx := context.Background()
	conv, _ := svc.InitializeConversation(ctx, "d1", "p1")
	id := conv.ID.Hex()

	cases := []struct {
		name string
		in   SendMessageInput
		kind error
	}{
		{"empty content", SendMessageInput{id, "p1", model.SenderUser, "   "}, apperror.ErrValidation},
		{"too long", SendMessageInput{id, "p1", model.SenderUser, strings.Repeat("a", MaxContentLength+1)}, apperror.ErrValidation},
		{"bad sender type", SendMessageInput{id, "p1", model.SenderType("nurse"), "hi"}, apperror.ErrValidation},
		{"missing sender", SendMessageInput{id, "", model.SenderUser, "hi"}, apperror.ErrValidation},
		{"not a participant", SendMessageInput{id, "p2", model.SenderUser, "hi"}, apperror.ErrValidation},
		{"wrong role", SendMessageInput{id, "p1", model.SenderDoctor, "hi"}, apperror.ErrValidation},
		{"unknown conversation", SendMessageInput{"000000000000000000000000", "p1", model.SenderUser, "hi"}, apperror.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SendMessage(ctx, tc.in); !errors.Is(err, tc.kind) {
				t.Fatalf("got %v, want %v", err, tc.kind)
			}
		})
	}

	stored, _ := store.Get(ctx, id)
	if len(stored.Messages) != 0 {
		t.Fatalf("rejected sends must not persist, got %d messages", len(stored.Messages))
	}
	if n := len(b.snapshot()); n != 0 {
		t.Fatalf("rejected sends must not broadcast, got %d", n)
	}
}

func TestSendMessage_RateLimit(t *testing.T) {
	store := repo.NewMemoryConversationRepository(zap.NewNop())
	conv, _ := store.FindOrCreate(context.Background(), "d1", "p1")
	in := SendMessageInput{conv.ID.Hex(), "d1", model.SenderDoctor, "hello"}

	limited := NewChatService(store, nil, stubLimiter{allow: false}, zap.NewNop())
	if _, err := limited.SendMessage(context.Background(), in); !errors.Is(err, apperror.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}

	broken := NewChatService(store, nil, stubLimiter{err: errors.New("redis down")}, zap.NewNop())
	if _, err := broken.SendMessage(context.Background(), in); err != nil {
		t.Fatalf("limiter failure should fail open, got %v", err)
	}
}

func TestSendMessage_ConcurrentSendersKeepEveryMessage(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	conv, _ := svc.InitializeConversation(ctx, "d1", "p1")
	id := conv.ID.Hex()

	const perSide = 20
	var wg sync.WaitGroup
	for i := 0; i < perSide; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.SendMessage(ctx, SendMessageInput{id, "d1", model.SenderDoctor, "from doctor"}); err != nil {
				t.Errorf("doctor send: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.SendMessage(ctx, SendMessageInput{id, "p1", model.SenderUser, "from patient"}); err != nil {
				t.Errorf("patient send: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, _ := store.Get(ctx, id)
	if len(stored.Messages) != 2*perSide {
		t.Fatalf("expected %d messages, got %d", 2*perSide, len(stored.Messages))
	}
	seen := make(map[string]bool)
	for _, m := range stored.Messages {
		if seen[m.MessageID] {
			t.Fatalf("duplicate message id %s", m.MessageID)
		}
		seen[m.MessageID] = true
	}
}

func TestMarkRead_FlipsCounterpartOnly(t *testing.T) {
	svc, store, b := newTestService(t)
	ctx := context.Background()
	conv, _ := svc.InitializeConversation(ctx, "d1", "p1")
	id := conv.ID.Hex()

	svc.SendMessage(ctx, SendMessageInput{id, "p1", model.SenderUser, "first"})
	svc.SendMessage(ctx, SendMessageInput{id, "p1", model.SenderUser, "second"})
	svc.SendMessage(ctx, SendMessageInput{id, "d1", model.SenderDoctor, "reply"})

	changed, err := svc.MarkRead(ctx, id, model.SenderDoctor)
	if err != nil || !changed {
		t.Fatalf("mark read: changed=%v err=%v", changed, err)
	}

	stored, _ := store.Get(ctx, id)
	for _, m := range stored.Messages {
		wantRead := m.SenderType == model.SenderUser
		if m.Read != wantRead {
			t.Fatalf("message from %s read=%v, want %v", m.SenderType, m.Read, wantRead)
		}
	}

	calls := b.snapshot()
	last, ok := calls[len(calls)-1].ev.(event.MessagesRead)
	if !ok || last.ReaderType != model.SenderDoctor || last.ChatID != id {
		t.Fatalf("expected messages_read broadcast, got %+v", calls[len(calls)-1])
	}

	before := len(b.snapshot())
	changed, err = svc.MarkRead(ctx, id, model.SenderDoctor)
	if err != nil || changed {
		t.Fatalf("second mark read: changed=%v err=%v", changed, err)
	}
	if after := len(b.snapshot()); after != before {
		t.Fatalf("no-op mark read must not broadcast")
	}
}

func TestMarkRead_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.MarkRead(context.Background(), "", model.SenderUser); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.MarkRead(context.Background(), "abc", "admin"); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListForDoctor_UnreadCountsAndOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	older, _ := svc.InitializeConversation(ctx, "d1", "p1")
	newer, _ := svc.InitializeConversation(ctx, "d1", "p2")
	svc.InitializeConversation(ctx, "d2", "p1")

	svc.SendMessage(ctx, SendMessageInput{older.ID.Hex(), "p1", model.SenderUser, "hello"})
	svc.SendMessage(ctx, SendMessageInput{newer.ID.Hex(), "p2", model.SenderUser, "one"})
	svc.SendMessage(ctx, SendMessageInput{newer.ID.Hex(), "p2", model.SenderUser, "two"})
	svc.SendMessage(ctx, SendMessageInput{newer.ID.Hex(), "d1", model.SenderDoctor, "three"})

	list, err := svc.ListForDoctor(ctx, "d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != newer.ID.Hex() || list[1].ID != older.ID.Hex() {
		t.Fatalf("expected most recent first, got %s then %s", list[0].ID, list[1].ID)
	}
	if list[0].UnreadCount != 2 || list[1].UnreadCount != 1 {
		t.Fatalf("unread counts = %d, %d; want 2, 1", list[0].UnreadCount, list[1].UnreadCount)
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Content != "three" {
		t.Fatalf("unexpected last message: %+v", list[0].LastMessage)
	}

	patient, err := svc.ListForUser(ctx, "p2")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(patient) != 1 || patient[0].UnreadCount != 1 {
		t.Fatalf("unexpected patient list: %+v", patient)
	}
}

func TestListForUser_Empty(t *testing.T) {
	svc, _, _ := newTestService(t)
	list, err := svc.ListForUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
}

func TestTyping_ExcludesSender(t *testing.T) {
	svc, _, b := newTestService(t)
	in := TypingInput{ConversationID: "c1", UserID: "p1", UserType: model.SenderUser}

	if err := svc.Typing(context.Background(), in, true, "client-1"); err != nil {
		t.Fatalf("typing: %v", err)
	}
	if err := svc.Typing(context.Background(), in, false, "client-1"); err != nil {
		t.Fatalf("typing: %v", err)
	}

	calls := b.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(calls))
	}
	if calls[0].ev.Name() != event.EventTypingStart || calls[1].ev.Name() != event.EventTypingStop {
		t.Fatalf("unexpected event names %s, %s", calls[0].ev.Name(), calls[1].ev.Name())
	}
	if calls[0].excludeID != "client-1" {
		t.Fatalf("typing must exclude the sender, got %q", calls[0].excludeID)
	}

	if err := svc.Typing(context.Background(), TypingInput{ConversationID: "c1", UserID: "p1", UserType: "x"}, true, ""); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFilterAndMap(t *testing.T) {
	evens := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if len(evens) != 2 || evens[0] != 2 || evens[1] != 4 {
		t.Fatalf("Filter = %v", evens)
	}
	strs := Map([]int{1, 2}, func(n int) string { return strings.Repeat("x", n) })
	if len(strs) != 2 || strs[1] != "xx" {
		t.Fatalf("Map = %v", strs)
	}
}
