package hub

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/apperror"
	"github.com/abhigit-saha/hack36-sub000/internal/event"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/service"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

var (
	errEgressFull   = errors.New("egress full")
	errClientClosed = errors.New("client closed")
)

// Subscriber is a live connection that can be joined to a room.
type Subscriber interface {
	ID() string
	// Deliver enqueues ev for writing, waiting at most timeout.
	Deliver(ev event.WsEvent, timeout time.Duration) error
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]Subscriber
}

// Rooms maps conversation ids to the set of subscribers joined to them. The table
// is split into shards so joins in unrelated conversations do not contend.
type Rooms struct {
	shards      [shardCount]*roomBucket
	sendTimeout time.Duration
	logger      *zap.Logger
}

// Ensure interface compliance at compile time
var _ service.Broadcaster = (*Rooms)(nil)

func NewRooms(sendTimeout time.Duration, logger *zap.Logger) *Rooms {
	r := &Rooms{
		sendTimeout: sendTimeout,
		logger:      logger,
	}
	for i := 0; i < shardCount; i++ {
		r.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]Subscriber),
		}
	}
	return r
}

func getShard(conversationID string) uint32 {
	if conversationID == "" {
		return 0
	}

	h := sha1.Sum([]byte(conversationID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

// Join adds s to the room and returns the room size afterwards.
func (r *Rooms) Join(conversationID string, s Subscriber) int {
	sh := getShard(conversationID)
	b := r.shards[sh]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[conversationID]
	if !ok {
		room = make(map[string]Subscriber)
		b.rooms[conversationID] = room
	}
	room[s.ID()] = s

	r.logger.Debug("subscriber joined room",
		zap.String("conversation_id", conversationID),
		zap.String("client_id", s.ID()),
		zap.Uint32("shard", sh),
	)
	return len(room)
}

// Leave removes the subscriber and returns how many remain in the room.
func (r *Rooms) Leave(conversationID, subscriberID string) int {
	b := r.shards[getShard(conversationID)]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[conversationID]
	if !ok {
		return 0
	}
	delete(room, subscriberID)
	if len(room) == 0 {
		delete(b.rooms, conversationID)
		return 0
	}
	return len(room)
}

// Members returns the number of subscribers joined to the room.
func (r *Rooms) Members(conversationID string) int {
	b := r.shards[getShard(conversationID)]
	b.RLock()
	defer b.RUnlock()
	return len(b.rooms[conversationID])
}

// Broadcast delivers ev to every subscriber of the room except excludeID and
// returns how many accepted it. Failed deliveries are logged and skipped.
func (r *Rooms) Broadcast(conversationID string, ev event.Outbound, excludeID string) int {
	wire, err := event.Encode(ev)
	if err != nil {
		r.logger.Error("failed to encode outbound event",
			zap.String("event", ev.Name()),
			zap.Error(err),
		)
		return 0
	}

	// collect subscribers while holding RLock
	b := r.shards[getShard(conversationID)]
	b.RLock()
	room := b.rooms[conversationID]
	targets := make([]Subscriber, 0, len(room))
	for id, s := range room {
		if id != excludeID {
			targets = append(targets, s)
		}
	}
	b.RUnlock()

	// deliver without holding the lock
	delivered := 0
	for _, s := range targets {
		if err := s.Deliver(wire, r.sendTimeout); err != nil {
			r.logger.Warn("broadcast delivery failed",
				zap.String("conversation_id", conversationID),
				zap.String("event", wire.Event),
				zap.Error(apperror.Delivery(s.ID(), err)),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Snapshot lists every non-empty room, ordered by conversation id.
func (r *Rooms) Snapshot() []model.RoomInfo {
	out := make([]model.RoomInfo, 0)
	for _, b := range r.shards {
		b.RLock()
		for conversationID, room := range b.rooms {
			ids := make([]string, 0, len(room))
			for id := range room {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			out = append(out, model.RoomInfo{
				ConversationID: conversationID,
				Subscribers:    len(room),
				SubscriberIDs:  ids,
			})
		}
		b.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}
