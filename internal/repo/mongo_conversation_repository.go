package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/db"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// Ensure interface compliance at compile time
var _ ConversationRepository = (*MongoConversationRepository)(nil)

type MongoConversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
	now       func() time.Time
}

// NewMongoConversationRepository returns the Mongo adapter. Call EnsureIndexes
// once at startup so the pair uniqueness is enforced by the store.
func NewMongoConversationRepository(repo *db.Repository[model.Conversation], logger *zap.Logger) *MongoConversationRepository {
	return &MongoConversationRepository{
		mongoRepo: repo,
		logger:    logger,
		now:       time.Now,
	}
}

// ConversationIndexes are the indexes the conversations collection relies on.
func ConversationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "doctor_id", Value: 1}, {Key: "patient_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_doctor_patient"),
		},
		{
			Keys:    bson.D{{Key: "last_activity", Value: 1}, {Key: "connection_status", Value: 1}},
			Options: options.Index().SetName("idx_staleness"),
		},
		{
			Keys:    bson.D{{Key: "patient_id", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("idx_patient_recent"),
		},
	}
}

func (r *MongoConversationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	if err := r.mongoRepo.EnsureIndexes(ctx, ConversationIndexes()); err != nil {
		r.logger.Error("failed to ensure conversation indexes", zap.Error(err))
		return translate("ensure indexes", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// FindOrCreate
// -----------------------------------------------------------------------------

func (r *MongoConversationRepository) FindOrCreate(ctx context.Context, doctorID, patientID string) (*model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := pairFilter(doctorID, patientID)

	var conv *model.Conversation
	err := r.withRetry(ctx, "find or create conversation", func(ctx context.Context) error {
		found, err := r.mongoRepo.FindOne(ctx, filter)
		if err == nil {
			conv = found
			return nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return err
		}

		created, err := r.mongoRepo.Upsert(ctx, filter, model.NewConversation(doctorID, patientID, r.now().UTC().Truncate(time.Millisecond)))
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent first contact won the insert; read its record.
			created, err = r.mongoRepo.FindOne(ctx, filter)
		}
		if err != nil {
			return err
		}
		conv = created
		return nil
	})
	if err != nil {
		return nil, translate("find or create conversation", err)
	}

	r.logger.Debug("conversation resolved",
		zap.String("conversation_id", conv.ID.Hex()),
		zap.String("doctor_id", doctorID),
		zap.String("patient_id", patientID),
	)
	return conv, nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (r *MongoConversationRepository) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	id, err := parseID(conversationID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	var conv *model.Conversation
	err = r.withRetry(ctx, "get conversation", func(ctx context.Context) error {
		found, err := r.mongoRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		conv = found
		return nil
	})
	if err != nil {
		return nil, translate("get conversation", err)
	}
	return conv, nil
}

func (r *MongoConversationRepository) ListByDoctor(ctx context.Context, doctorID string) ([]model.Conversation, error) {
	return r.list(ctx, db.NewFilter().Eq("doctor_id", doctorID).Build())
}

func (r *MongoConversationRepository) ListByUser(ctx context.Context, patientID string) ([]model.Conversation, error) {
	return r.list(ctx, db.NewFilter().Eq("patient_id", patientID).Build())
}

func (r *MongoConversationRepository) list(ctx context.Context, filter bson.M) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})

	var out []model.Conversation
	err := r.withRetry(ctx, "list conversations", func(ctx context.Context) error {
		found, err := r.mongoRepo.FindAll(ctx, filter, opts)
		if err != nil {
			return err
		}
		out = found
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list conversations", zap.Any("filter", filter), zap.Error(err))
		return nil, translate("list conversations", err)
	}
	return out, nil
}

func (r *MongoConversationRepository) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 1})

	var found []model.Conversation
	err := r.withRetry(ctx, "list stale conversations", func(ctx context.Context) error {
		var err error
		found, err = r.mongoRepo.FindAll(ctx, staleFilter(cutoff), opts)
		return err
	})
	if err != nil {
		return nil, translate("list stale conversations", err)
	}

	ids := make([]string, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.ID.Hex())
	}
	return ids, nil
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

func (r *MongoConversationRepository) AppendMessage(ctx context.Context, conversationID string, msg model.Message) error {
	id, err := parseID(conversationID)
	if err != nil {
		return err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	// The message_id guard makes a retried push idempotent.
	filter := db.NewFilter().
		Eq("_id", id).
		Ne("messages.message_id", msg.MessageID).
		Build()

	err = r.withRetry(ctx, "append message", func(ctx context.Context) error {
		res, err := r.mongoRepo.Apply(ctx, filter, appendMessageUpdate(msg))
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return r.existsOrNotFound(ctx, id)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to append message",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return translate("append message", err)
	}

	r.logger.Info("message appended",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.MessageID),
	)
	return nil
}

func (r *MongoConversationRepository) SetConnectionStatus(ctx context.Context, conversationID string, status model.ConnectionStatus, now time.Time) error {
	return r.applyByID(ctx, "set connection status", conversationID, bson.M{
		"$set": bson.M{"connection_status": status},
		"$max": bson.M{"last_activity": now},
	})
}

func (r *MongoConversationRepository) RecordHeartbeat(ctx context.Context, conversationID string, now time.Time) error {
	return r.applyByID(ctx, "record heartbeat", conversationID, bson.M{
		"$set": bson.M{"connection_status": model.StatusConnected},
		"$max": bson.M{"last_activity": now},
	})
}

func (r *MongoConversationRepository) MarkRead(ctx context.Context, conversationID string, reader model.SenderType) (bool, error) {
	id, err := parseID(conversationID)
	if err != nil {
		return false, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter, update, opts := markReadUpdate(id, reader)

	var changed bool
	err = r.withRetry(ctx, "mark read", func(ctx context.Context) error {
		res, err := r.mongoRepo.Apply(ctx, filter, update, opts)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			changed = false
			return r.existsOrNotFound(ctx, id)
		}
		changed = res.ModifiedCount > 0
		return nil
	})
	if err != nil {
		return false, translate("mark read", err)
	}
	return changed, nil
}

func (r *MongoConversationRepository) DisconnectStale(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	id, err := parseID(conversationID)
	if err != nil {
		return false, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := staleFilter(cutoff)
	filter["_id"] = id

	res, err := r.mongoRepo.Update(ctx, filter, bson.M{"connection_status": model.StatusDisconnected})
	if err != nil {
		return false, translate("disconnect stale conversation", err)
	}
	return res.ModifiedCount > 0, nil
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (r *MongoConversationRepository) applyByID(ctx context.Context, op, conversationID string, update bson.M) error {
	id, err := parseID(conversationID)
	if err != nil {
		return err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	err = r.withRetry(ctx, op, func(ctx context.Context) error {
		res, err := r.mongoRepo.Apply(ctx, bson.M{"_id": id}, update)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return errConversationNotFound
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("conversation update failed",
			zap.String("op", op),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return translate(op, err)
	}
	return nil
}

func (r *MongoConversationRepository) existsOrNotFound(ctx context.Context, id primitive.ObjectID) error {
	n, err := r.mongoRepo.Count(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return errConversationNotFound
	}
	return nil
}

func (r *MongoConversationRepository) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return err
			}
			r.logger.Warn("retrying store operation",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}
	return lastErr
}

func parseID(conversationID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return primitive.NilObjectID, errConversationNotFound
	}
	return id, nil
}

func pairFilter(doctorID, patientID string) bson.M {
	return db.NewFilter().Eq("doctor_id", doctorID).Eq("patient_id", patientID).Build()
}

func staleFilter(cutoff time.Time) bson.M {
	return db.NewFilter().
		Ne("connection_status", model.StatusDisconnected).
		Lt("last_activity", cutoff).
		Build()
}

func appendMessageUpdate(msg model.Message) bson.M {
	return bson.M{
		"$push": bson.M{"messages": msg},
		"$max":  bson.M{"last_message_at": msg.CreatedAt, "last_activity": msg.CreatedAt},
	}
}

func markReadUpdate(id primitive.ObjectID, reader model.SenderType) (bson.M, bson.M, *options.UpdateOptions) {
	unread := bson.M{"sender_type": reader.Counterpart(), "read": false}

	filter := db.NewFilter().Eq("_id", id).ElemMatch("messages", unread).Build()
	update := bson.M{"$set": bson.M{"messages.$[m].read": true}}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"m.sender_type": reader.Counterpart(), "m.read": false}},
	})
	return filter, update, opts
}
