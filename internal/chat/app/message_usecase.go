package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"family_chat_service/internal/attachment/domain"
	chatdomain "family_chat_service/internal/chat/domain"
	"family_chat_service/internal/chat/repository"
	"family_chat_service/pkg/database"
	"family_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// SendMessageUseCase is the message broker: it validates, stamps, persists,
// fans out and then drives delivery status for every room message.
type SendMessageUseCase struct {
	hub      *RoomHub
	msgRepo  repository.MessageRepository
	pubSub   repository.PubSub
	archive  repository.EventArchive
	delivery *DeliveryTracker

	// waveform job queue, optional
	jobs      database.RabbitRepo
	jobsQueue string

	mu    sync.Mutex
	rooms map[string]*roomSendState
}

// roomSendState serializes the send path of one room. Stamping and the
// local broadcast happen under its lock, so the live fan-out order and the
// created_at order never diverge.
type roomSendState struct {
	mu        sync.Mutex
	lastStamp int64
}

// nextStamp returns a strictly increasing unix-millisecond timestamp.
// The caller holds rs.mu.
func (rs *roomSendState) nextStamp() int64 {
	now := time.Now().UnixMilli()
	if now <= rs.lastStamp {
		now = rs.lastStamp + 1
	}
	rs.lastStamp = now
	return now
}

// NewSendMessageUseCase init create message use case. pubSub, archive and
// jobs may be nil; the broker then runs single-node without an event archive.
func NewSendMessageUseCase(
	hub *RoomHub,
	msgRepo repository.MessageRepository,
	pubSub repository.PubSub,
	archive repository.EventArchive,
	delivery *DeliveryTracker,
) *SendMessageUseCase {
	return &SendMessageUseCase{
		hub:      hub,
		msgRepo:  msgRepo,
		pubSub:   pubSub,
		archive:  archive,
		delivery: delivery,
		rooms:    make(map[string]*roomSendState),
	}
}

// SetWaveformQueue wires the queue voice notes without a waveform are pushed to.
func (uc *SendMessageUseCase) SetWaveformQueue(jobs database.RabbitRepo, queueName string) {
	uc.jobs = jobs
	uc.jobsQueue = queueName
}

// Execute send message: validate, stamp, persist best-effort, broadcast to
// every subscriber of the room (sender included), then advance delivery.
func (uc *SendMessageUseCase) Execute(ctx context.Context, roomID, sender string, req chatdomain.WSRequest) (chatdomain.Message, error) {
	msg := chatdomain.Message{
		ID:      uuid.New().String(),
		Room:    roomID,
		Sender:  sender,
		Kind:    chatdomain.MessageKind(req.Kind),
		Status:  chatdomain.StatusSending,
		Content: req.Content,
		Voice:   req.Voice,
		File:    req.File,
	}

	if err := msg.Validate(); err != nil {
		return chatdomain.Message{}, err
	}

	// stamp, append and broadcast as one unit per room: concurrent sends
	// must reach subscribers in created_at order
	rs := uc.sendState(roomID)
	rs.mu.Lock()
	msg.CreatedAt = rs.nextStamp()

	// best-effort persistence: a failed append is a gap in replayable
	// history, not a failed delivery
	if err := uc.msgRepo.Append(ctx, &msg); err != nil {
		logger.Log.Errorf("history append failed, message delivered without durability:", err)
	}

	// sending a message implicitly clears the sender's typing indicator
	uc.hub.SetTyping(roomID, sender, false)

	uc.hub.Broadcast(roomID, receiveMessageEvent(msg))
	rs.mu.Unlock()

	if uc.pubSub != nil {
		if err := uc.pubSub.Publish(roomID, msg); err != nil {
			logger.Log.Errorf("cross-node publish failed:", err)
		}
	}

	if uc.archive != nil {
		if err := uc.archive.Archive(ctx, msg); err != nil {
			logger.Log.Errorf("event archive write failed:", err)
		}
	}

	uc.enqueueWaveformJob(msg)

	uc.delivery.Track(msg)
	uc.delivery.Advance(msg.ID, chatdomain.StatusSent)

	return msg, nil
}

// SystemNotice broadcasts a transient system message to the room. It is
// never persisted and never enters the delivery tracker.
func (uc *SendMessageUseCase) SystemNotice(roomID, text string) chatdomain.Message {
	msg := chatdomain.Message{
		ID:      uuid.New().String(),
		Room:    roomID,
		Sender:  "system",
		Kind:    chatdomain.KindSystem,
		Status:  chatdomain.StatusSent,
		Content: text,
	}
	rs := uc.sendState(roomID)
	rs.mu.Lock()
	msg.CreatedAt = rs.nextStamp()
	uc.hub.Broadcast(roomID, receiveMessageEvent(msg))
	rs.mu.Unlock()
	return msg
}

// MarkRead advances a message to read on a client visibility report.
func (uc *SendMessageUseCase) MarkRead(msgID string) bool {
	return uc.delivery.Advance(msgID, chatdomain.StatusRead)
}

// Recent returns up to 100 messages of a room, ascending by created_at.
func (uc *SendMessageUseCase) Recent(ctx context.Context, roomID string, limit int64) ([]chatdomain.Message, error) {
	return uc.msgRepo.Recent(ctx, roomID, limit)
}

// ReplayRemote re-broadcasts a message that another node already validated
// and persisted. Local subscribers of the room receive it exactly once.
func (uc *SendMessageUseCase) ReplayRemote(env chatdomain.RoomEnvelope) {
	uc.hub.Broadcast(env.Room, receiveMessageEvent(env.Message))
}

// sendState returns the send serialization state of a room, creating it
// on first use.
func (uc *SendMessageUseCase) sendState(roomID string) *roomSendState {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	rs, ok := uc.rooms[roomID]
	if !ok {
		rs = &roomSendState{}
		uc.rooms[roomID] = rs
	}
	return rs
}

func (uc *SendMessageUseCase) enqueueWaveformJob(msg chatdomain.Message) {
	if uc.jobs == nil || msg.Kind != chatdomain.KindVoice || msg.Voice == nil || len(msg.Voice.Waveform) > 0 {
		return
	}
	job := domain.WaveformJob{
		MessageID: msg.ID,
		Room:      msg.Room,
		FileRef:   msg.Voice.AudioRef,
	}
	data, err := json.Marshal(job)
	if err != nil {
		logger.Log.Errorf("waveform job marshal failed:", err)
		return
	}
	if err := uc.jobs.Publish("", uc.jobsQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
	}); err != nil {
		logger.Log.Error(fmt.Sprintf("waveform job publish failed: %v", err))
	}
}

func receiveMessageEvent(msg chatdomain.Message) chatdomain.WSEvent {
	return chatdomain.WSEvent{
		Event:   chatdomain.EventReceiveMessage,
		Room:    msg.Room,
		Success: true,
		Payload: map[string]interface{}{"message": msg},
	}
}
