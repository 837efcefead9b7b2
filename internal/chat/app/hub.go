package app

import (
	"sort"
	"sync"
	"time"

	"family_chat_service/internal/chat/domain"
	"family_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// subscriberBuffer bounds the per-connection outbound queue. A full buffer
// drops the event instead of stalling the room fan-out.
const subscriberBuffer = 64

// Subscriber is one connection's attachment to the hub, shared across every
// room the connection joins. Events pushed to Out are serialized to the
// socket by a single writer goroutine in the gateway, which also owns
// closing Out; the hub only attaches and detaches.
type Subscriber struct {
	ConnID string
	Name   string
	Out    chan domain.WSEvent
}

// NewSubscriber create a Subscriber with a bounded outbound queue
func NewSubscriber(connID, name string) *Subscriber {
	return &Subscriber{
		ConnID: connID,
		Name:   name,
		Out:    make(chan domain.WSEvent, subscriberBuffer),
	}
}

// room holds one room's presence set and subscriber list. All mutation goes
// through mu, so join/leave/broadcast on the same room never race; distinct
// rooms share nothing beyond the registry map.
type room struct {
	mu           sync.Mutex
	participants map[string]domain.Participant // keyed by name, set semantics
	subs         map[string]*Subscriber        // keyed by connection id
}

// RoomHub is the room registry: rooms exist implicitly and are created
// lazily on first join, never explicitly destroyed.
type RoomHub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// NewRoomHub create RoomHub
func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: make(map[string]*room)}
}

func (h *RoomHub) getRoom(roomID string) *room {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rooms[roomID]; ok {
		return r
	}
	r = &room{
		participants: make(map[string]domain.Participant),
		subs:         make(map[string]*Subscriber),
	}
	h.rooms[roomID] = r
	return r
}

// Join inserts or replaces the participant keyed by name, then broadcasts the
// full presence snapshot plus a join notice to everyone in the room, the
// joiner included. Rejoining with the same name evicts the stale entry.
func (h *RoomHub) Join(roomID string, p domain.Participant, sub *Subscriber) {
	if p.JoinedAt == 0 {
		p.JoinedAt = time.Now().UnixMilli()
	}
	r := h.getRoom(roomID)

	r.mu.Lock()
	if old, ok := r.participants[p.Name]; ok && old.ConnectionID != p.ConnectionID {
		delete(r.subs, old.ConnectionID)
	}
	r.participants[p.Name] = p
	r.subs[sub.ConnID] = sub
	snapshot := r.snapshotLocked()
	r.broadcastLocked("", domain.WSEvent{
		Event:   domain.EventOnlineUsers,
		Room:    roomID,
		Success: true,
		Payload: map[string]interface{}{"participants": snapshot},
	})
	r.broadcastLocked("", domain.WSEvent{
		Event:   domain.EventUserJoined,
		Room:    roomID,
		Success: true,
		Payload: map[string]interface{}{"name": p.Name},
	})
	r.mu.Unlock()
}

// Leave removes the participant and broadcasts the updated snapshot plus a
// leave notice. The connID guard keeps a stale disconnect, arriving after a
// rejoin already replaced the entry, from evicting the fresh participant.
func (h *RoomHub) Leave(roomID, name, connID string) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	p, present := r.participants[name]
	if !present || p.ConnectionID != connID {
		delete(r.subs, connID)
		r.mu.Unlock()
		return
	}
	delete(r.participants, name)
	delete(r.subs, connID)
	snapshot := r.snapshotLocked()
	r.broadcastLocked("", domain.WSEvent{
		Event:   domain.EventOnlineUsers,
		Room:    roomID,
		Success: true,
		Payload: map[string]interface{}{"participants": snapshot},
	})
	r.broadcastLocked("", domain.WSEvent{
		Event:   domain.EventUserLeft,
		Room:    roomID,
		Success: true,
		Payload: map[string]interface{}{"name": name},
	})
	r.mu.Unlock()
}

// Snapshot returns the current presence set, recomputed on demand.
func (h *RoomHub) Snapshot(roomID string) []domain.Participant {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Broadcast delivers an event to every subscriber of the room, FIFO per room.
func (h *RoomHub) Broadcast(roomID string, ev domain.WSEvent) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.broadcastLocked("", ev)
	r.mu.Unlock()
}

// BroadcastExcept delivers an event to every subscriber except the named one.
func (h *RoomHub) BroadcastExcept(roomID, exceptName string, ev domain.WSEvent) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	r.broadcastLocked(exceptName, ev)
	r.mu.Unlock()
}

// SetTyping relays a typing indicator to everyone except the sender.
// Nothing is persisted and no state is kept server side.
func (h *RoomHub) SetTyping(roomID, name string, isTyping bool) {
	h.BroadcastExcept(roomID, name, domain.WSEvent{
		Event:   domain.EventUserTyping,
		Room:    roomID,
		Success: true,
		Payload: map[string]interface{}{"name": name, "is_typing": isTyping},
	})
}

func (r *room) snapshotLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// broadcastLocked fans out without blocking on any single subscriber: a full
// outbound queue drops the event for that subscriber and is logged.
func (r *room) broadcastLocked(exceptName string, ev domain.WSEvent) {
	for _, sub := range r.subs {
		if exceptName != "" && sub.Name == exceptName {
			continue
		}
		select {
		case sub.Out <- ev:
		default:
			logger.Log.Warn("subscriber queue full, event dropped",
				zap.String("conn", sub.ConnID),
				zap.String("event", ev.Event),
			)
		}
	}
}
