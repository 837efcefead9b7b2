package app

import (
	"sync"
	"time"

	"family_chat_service/internal/chat/domain"
)

// Broadcaster is the fan-out surface the tracker needs from the hub.
type Broadcaster interface {
	Broadcast(roomID string, ev domain.WSEvent)
}

// DeliveryTracker drives the per-message status lifecycle
// sending -> sent -> delivered -> read, with failed as an alternate terminal
// reachable from sending/sent only. Transitions never move backward; stale or
// out-of-order requests are ignored.
type DeliveryTracker struct {
	hub Broadcaster

	mu     sync.Mutex
	status map[string]trackedMessage

	// deliveredDelay approximates network acknowledgement: once sent, a
	// message is considered delivered after this delay.
	deliveredDelay time.Duration
}

type trackedMessage struct {
	room   string
	status domain.DeliveryStatus
}

// NewDeliveryTracker create DeliveryTracker
func NewDeliveryTracker(hub Broadcaster, deliveredDelay time.Duration) *DeliveryTracker {
	if deliveredDelay <= 0 {
		deliveredDelay = 300 * time.Millisecond
	}
	return &DeliveryTracker{
		hub:            hub,
		status:         make(map[string]trackedMessage),
		deliveredDelay: deliveredDelay,
	}
}

// Track registers a freshly created message in the sending state.
// System messages never enter the tracker.
func (t *DeliveryTracker) Track(msg domain.Message) {
	if msg.Kind == domain.KindSystem {
		return
	}
	t.mu.Lock()
	t.status[msg.ID] = trackedMessage{room: msg.Room, status: domain.StatusSending}
	t.mu.Unlock()
}

// Status returns the tracked status of a message.
func (t *DeliveryTracker) Status(msgID string) (domain.DeliveryStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.status[msgID]
	return tm.status, ok
}

// Advance moves a message to next if that is a forward transition, emitting a
// status-only event to the room. Returns false for unknown messages, backward
// or repeated transitions, and failed requested from delivered/read.
func (t *DeliveryTracker) Advance(msgID string, next domain.DeliveryStatus) bool {
	t.mu.Lock()
	tm, ok := t.status[msgID]
	if !ok {
		t.mu.Unlock()
		return false
	}

	if next == domain.StatusFailed {
		if tm.status != domain.StatusSending && tm.status != domain.StatusSent {
			t.mu.Unlock()
			return false
		}
	} else if next.Rank() <= tm.status.Rank() {
		t.mu.Unlock()
		return false
	}

	tm.status = next
	if next == domain.StatusRead || next == domain.StatusFailed {
		// terminal for this tracker; late transition requests become unknown
		// ids and are ignored above
		delete(t.status, msgID)
	} else {
		t.status[msgID] = tm
	}
	t.mu.Unlock()

	t.hub.Broadcast(tm.room, domain.WSEvent{
		Event:   domain.EventMessageStatus,
		Room:    tm.room,
		Success: true,
		Payload: map[string]interface{}{"message_id": msgID, "status": string(next)},
	})

	if next == domain.StatusSent {
		time.AfterFunc(t.deliveredDelay, func() {
			t.Advance(msgID, domain.StatusDelivered)
		})
	}
	return true
}

// Fail marks a message failed when still in sending/sent.
func (t *DeliveryTracker) Fail(msgID string) bool {
	return t.Advance(msgID, domain.StatusFailed)
}
