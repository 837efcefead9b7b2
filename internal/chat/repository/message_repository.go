package repository

import (
	"context"

	"family_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecentLimit caps how much history one query may return.
const RecentLimit = 100

// MessageRepository definition message history store
type MessageRepository interface {
	// Append writes one message. Best-effort from the broker's perspective.
	Append(ctx context.Context, msg *domain.Message) error
	// Recent returns up to limit messages for a room, ascending by created_at.
	Recent(ctx context.Context, roomID string, limit int64) ([]domain.Message, error)
	// UpdateVoiceWaveform sets the waveform of a persisted voice message.
	UpdateVoiceWaveform(ctx context.Context, roomID, msgID string, waveform []float64) error
}

type chatMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoChatMessageRepository create a MessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection("chat_messages"),
	}
}

func (r *chatMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	// system notices are transient-only and never reach the store
	if msg.Kind == domain.KindSystem {
		return nil
	}
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

func (r *chatMessageRepository) Recent(ctx context.Context, roomID string, limit int64) ([]domain.Message, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}

	// newest first to apply the cap, then reversed to ascending order
	filter := bson.M{"room_id": roomID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "id", Value: -1}}).
		SetLimit(limit)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *chatMessageRepository) UpdateVoiceWaveform(ctx context.Context, roomID, msgID string, waveform []float64) error {
	filter := bson.M{"room_id": roomID, "id": msgID}
	update := bson.M{"$set": bson.M{"voice.waveform": waveform}}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}
