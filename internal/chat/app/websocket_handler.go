package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"family_chat_service/internal/chat/domain"
	"family_chat_service/internal/chat/repository"
	"family_chat_service/pkg/logger"
	"family_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatWebsocketHandler owns one websocket connection end to end
type ChatWebsocketHandler struct {
	hub       *RoomHub
	messageUC *SendMessageUseCase
	avatars   repository.AvatarRepository
	delivery  *DeliveryTracker
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	hub *RoomHub,
	messageUC *SendMessageUseCase,
	avatars repository.AvatarRepository,
	delivery *DeliveryTracker,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		hub:       hub,
		messageUC: messageUC,
		avatars:   avatars,
		delivery:  delivery,
	}
}

// connState per-connection mutable state. The read loop is the only
// writer except for inFlight, which the writer goroutine also consumes.
type connState struct {
	session domain.SessionContext
	sub     *Subscriber
	// room keys this connection has joined, for cleanup on disconnect
	rooms map[string]bool

	// ids of messages this connection sent that may still be in
	// sending/sent, failed in bulk when the transport dies
	mu       sync.Mutex
	inFlight []string
}

// noteInFlight records a freshly sent message and prunes ids the tracker
// has already moved past sent.
func (st *connState) noteInFlight(d *DeliveryTracker, id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	kept := st.inFlight[:0]
	for _, old := range st.inFlight {
		if s, ok := d.Status(old); ok && (s == domain.StatusSending || s == domain.StatusSent) {
			kept = append(kept, old)
		}
	}
	st.inFlight = append(kept, id)
}

// HandleConnection is the entry point of every websocket connection.
// All writes to conn go through the subscriber channel and the single
// writer goroutine; the read loop never calls WriteJSON itself.
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	name, _ := conn.Locals(middlewares.TokenMemberName).(string)
	family, _ := conn.Locals(middlewares.TokenFamily).(string)
	logger.Log.Info("websocket connected", zap.String("name", name), zap.String("family", family))

	connID := uuid.New().String()
	st := &connState{
		session: domain.SessionContext{Name: name, Family: family},
		sub:     NewSubscriber(connID, name),
		rooms:   make(map[string]bool),
	}

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		for roomKey := range st.rooms {
			h.hub.Leave(roomKey, st.session.Name, connID)
			h.messageUC.SystemNotice(roomKey, st.session.Name+" left the room")
		}
		// every room has detached the subscriber by now, safe to end the writer
		close(st.sub.Out)
		logger.Log.Info("websocket close", zap.String("name", st.session.Name))
		conn.Close()
		cancel()
	}()

	// fiber handles close frames inside ReadMessage, hook it for the log only
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("websocket closed:", conn.RemoteAddr())
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// single writer: drains the subscriber channel until Leave closes it
	// or the connection dies
	go func() {
		for ev := range st.sub.Out {
			if err := conn.WriteJSON(ev); err != nil {
				logger.Log.Errorf("write message error:", err)
				// the sender can no longer see confirmations, surface the
				// loss to the room instead of leaving messages in limbo
				h.failInFlight(st)
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
					logger.Log.Errorf("ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.textMessageAction(ctx, st, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, st *connState, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.push(st, domain.WSEvent{Event: "error", Success: false, Error: "malformed frame"})
		return
	}

	ev := domain.WSEvent{Event: req.Action, Room: req.Room, Success: false, Payload: map[string]interface{}{}}
	roomKey := roomKey(st.session.Family, req.Room)

	switch req.Action {
	case string(domain.SetIdentity):
		if req.Name == "" {
			ev.Error = "identity name is empty"
			break
		}
		if len(st.rooms) > 0 {
			ev.Error = "identity is fixed after joining a room"
			break
		}
		st.session.Name = req.Name
		st.sub.Name = req.Name
		ev.Success = true

	case string(domain.JoinRoom):
		if st.session.Name == "" {
			ev.Error = "join requires an identity"
			break
		}
		if req.Room == "" {
			ev.Error = "room is empty"
			break
		}
		if st.session.AvatarRef == "" {
			st.session.AvatarRef = h.avatars.Lookup(ctx, st.session.Name)
		}
		h.hub.Join(roomKey, domain.Participant{
			Name:         st.session.Name,
			AvatarRef:    st.session.AvatarRef,
			ConnectionID: st.sub.ConnID,
			JoinedAt:     time.Now().UnixMilli(),
		}, st.sub)
		st.rooms[roomKey] = true
		h.messageUC.SystemNotice(roomKey, st.session.Name+" joined the room")
		ev.Success = true
		ev.Payload = map[string]interface{}{"participants": h.hub.Snapshot(roomKey)}

	case string(domain.LeaveRoom):
		if !st.rooms[roomKey] {
			ev.Error = "not in room"
			break
		}
		h.hub.Leave(roomKey, st.session.Name, st.sub.ConnID)
		delete(st.rooms, roomKey)
		h.messageUC.SystemNotice(roomKey, st.session.Name+" left the room")
		ev.Success = true

	case string(domain.SendMessage):
		if !st.rooms[roomKey] {
			ev.Error = "not in room"
			break
		}
		sent, err := h.messageUC.Execute(ctx, roomKey, st.session.Name, req)
		if err != nil {
			ev.Error = err.Error()
		} else {
			st.noteInFlight(h.delivery, sent.ID)
			ev.Success = true
			ev.Payload = map[string]interface{}{"message_id": sent.ID}
		}

	case string(domain.UserTyping):
		if !st.rooms[roomKey] {
			ev.Error = "not in room"
			break
		}
		h.hub.SetTyping(roomKey, st.session.Name, req.IsTyping)
		// typing is fire and forget, no ack
		return

	case string(domain.ReadMessage):
		if req.MessageID == "" {
			ev.Error = "message id is empty"
			break
		}
		ev.Success = h.messageUC.MarkRead(req.MessageID)
		if !ev.Success {
			ev.Error = "unknown message"
		}

	default:
		ev.Event = "error"
		ev.Error = "unknown action"
	}

	if ev.Error != "" {
		logger.Log.Error("websocket action failed",
			zap.String("name", st.session.Name),
			zap.String("action", req.Action),
			zap.String("err", ev.Error))
	}
	h.push(st, ev)
}

// push queues an event for the writer goroutine, dropping when the
// connection cannot keep up
func (h *ChatWebsocketHandler) push(st *connState, ev domain.WSEvent) {
	select {
	case st.sub.Out <- ev:
	default:
		logger.Log.Warn("subscriber buffer full, event dropped", zap.String("name", st.session.Name))
	}
}

// failInFlight marks every message this connection sent and has not yet
// seen confirmed past sent as failed. Advance ignores messages that
// already reached delivered or read, so late pruning is harmless.
func (h *ChatWebsocketHandler) failInFlight(st *connState) {
	st.mu.Lock()
	ids := st.inFlight
	st.inFlight = nil
	st.mu.Unlock()

	for _, id := range ids {
		if h.delivery.Fail(id) {
			logger.Log.Warn("message failed, sender transport lost",
				zap.String("name", st.session.Name),
				zap.String("message_id", id))
		}
	}
}

// roomKey prefixes a room with its family so rooms of different
// families never share a hub entry
func roomKey(family, room string) string {
	if family == "" {
		return room
	}
	return family + ":" + room
}
