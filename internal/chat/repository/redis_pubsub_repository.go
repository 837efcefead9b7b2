package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"family_chat_service/internal/chat/domain"
	"family_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// PubSub fans broadcast messages out to the other chat nodes.
type PubSub interface {
	Publish(roomID string, msg domain.Message) error
	SubscribeRooms(ctx context.Context, handler func(env domain.RoomEnvelope)) error
	Origin() string
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
	origin string
}

// NewRedisPubSub create RedisPubSub with a node-unique origin id
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		origin: uuid.New().String(),
	}
}

// Origin returns this node's publisher id.
func (r *RedisPubSub) Origin() string {
	return r.origin
}

func roomChannel(roomID string) string {
	return "chat:room:" + roomID
}

// Publish serializes the message into a RoomEnvelope on the room channel.
func (r *RedisPubSub) Publish(roomID string, msg domain.Message) error {
	env := domain.RoomEnvelope{
		Origin:  r.origin,
		Room:    roomID,
		Message: msg,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(context.Background(), roomChannel(roomID), data).Err()
}

// SubscribeRooms listens on every room channel and hands envelopes published
// by other nodes to the handler. The subscription closes with ctx.
func (r *RedisPubSub) SubscribeRooms(ctx context.Context, handler func(env domain.RoomEnvelope)) error {
	sub := r.client.PSubscribe(ctx, roomChannel("*"))
	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env domain.RoomEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					logger.Log.Errorf("room envelope unmarshal error:", err)
					continue
				}
				if env.Origin == r.origin {
					// own publish already fanned out locally
					continue
				}
				handler(env)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", roomChannel("*")))
				sub.Close()
				return
			}
		}
	}()
	return nil
}
