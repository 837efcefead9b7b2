package app

import (
	"context"
	"testing"
	"time"

	chatdomain "family_chat_service/internal/chat/domain"
	"family_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubAvatars keeps gateway tests away from the member service.
type stubAvatars struct{}

func (stubAvatars) Lookup(ctx context.Context, name string) string {
	return "avatar:" + name
}

type gatewayFixture struct {
	hub      *RoomHub
	delivery *DeliveryTracker
	repo     *MockMessageRepository
	handler  *ChatWebsocketHandler
}

func newGatewayFixture() *gatewayFixture {
	hub := NewRoomHub()
	delivery := NewDeliveryTracker(hub, time.Hour)
	repo := new(MockMessageRepository)
	uc := NewSendMessageUseCase(hub, repo, nil, nil, delivery)
	return &gatewayFixture{
		hub:      hub,
		delivery: delivery,
		repo:     repo,
		handler:  NewChatWebsocketHandler(hub, uc, stubAvatars{}, delivery),
	}
}

func newConn(name, family, connID string) *connState {
	return &connState{
		session: chatdomain.SessionContext{Name: name, Family: family},
		sub:     NewSubscriber(connID, name),
		rooms:   make(map[string]bool),
	}
}

func systemNotices(evs []chatdomain.WSEvent) []chatdomain.Message {
	var out []chatdomain.Message
	for _, ev := range eventsNamed(evs, chatdomain.EventReceiveMessage) {
		msg := ev.Payload["message"].(chatdomain.Message)
		if msg.Kind == chatdomain.KindSystem {
			out = append(out, msg)
		}
	}
	return out
}

func TestGatewaySystemNotices(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("joining announces the member to the room", func(t *testing.T) {
		f := newGatewayFixture()
		watcher := NewSubscriber("c0", "ben")
		f.hub.Join("fam:kitchen", chatdomain.Participant{Name: "ben", ConnectionID: "c0"}, watcher)
		drain(watcher)

		st := newConn("anna", "fam", "c1")
		f.handler.textMessageAction(ctx, st, []byte(`{"action":"join-room","room":"kitchen"}`))

		notices := systemNotices(drain(watcher))
		require.Len(t, notices, 1)
		assert.Equal(t, "system", notices[0].Sender)
		assert.Equal(t, "anna joined the room", notices[0].Content)
	})

	t.Run("leaving announces the departure to the rest", func(t *testing.T) {
		f := newGatewayFixture()
		watcher := NewSubscriber("c0", "ben")
		f.hub.Join("fam:kitchen", chatdomain.Participant{Name: "ben", ConnectionID: "c0"}, watcher)

		st := newConn("anna", "fam", "c1")
		f.handler.textMessageAction(ctx, st, []byte(`{"action":"join-room","room":"kitchen"}`))
		drain(watcher)

		f.handler.textMessageAction(ctx, st, []byte(`{"action":"leave-room","room":"kitchen"}`))

		notices := systemNotices(drain(watcher))
		require.Len(t, notices, 1)
		assert.Equal(t, "anna left the room", notices[0].Content)
		assert.False(t, st.rooms["fam:kitchen"])
	})
}

func TestGatewayTransportFailure(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("in-flight messages fail when the writer dies", func(t *testing.T) {
		f := newGatewayFixture()
		f.repo.On("Append", mock.Anything, mock.Anything).Return(nil)

		watcher := NewSubscriber("c0", "ben")
		f.hub.Join("fam:kitchen", chatdomain.Participant{Name: "ben", ConnectionID: "c0"}, watcher)

		st := newConn("anna", "fam", "c1")
		f.handler.textMessageAction(ctx, st, []byte(`{"action":"join-room","room":"kitchen"}`))
		f.handler.textMessageAction(ctx, st,
			[]byte(`{"action":"send-message","room":"kitchen","kind":"text","content":"hi"}`))

		acks := eventsNamed(drain(st.sub), string(chatdomain.SendMessage))
		require.Len(t, acks, 1)
		msgID := acks[0].Payload["message_id"].(string)

		status, ok := f.delivery.Status(msgID)
		require.True(t, ok)
		require.Equal(t, chatdomain.StatusSent, status)
		drain(watcher)

		f.handler.failInFlight(st)

		_, ok = f.delivery.Status(msgID)
		assert.False(t, ok, "failed is terminal, the tracker forgets the message")

		statuses := eventsNamed(drain(watcher), chatdomain.EventMessageStatus)
		require.Len(t, statuses, 1)
		assert.Equal(t, string(chatdomain.StatusFailed), statuses[0].Payload["status"])
	})

	t.Run("messages already read are left alone", func(t *testing.T) {
		f := newGatewayFixture()
		f.repo.On("Append", mock.Anything, mock.Anything).Return(nil)

		st := newConn("anna", "fam", "c1")
		f.handler.textMessageAction(ctx, st, []byte(`{"action":"join-room","room":"kitchen"}`))
		f.handler.textMessageAction(ctx, st,
			[]byte(`{"action":"send-message","room":"kitchen","kind":"text","content":"hi"}`))

		acks := eventsNamed(drain(st.sub), string(chatdomain.SendMessage))
		require.Len(t, acks, 1)
		msgID := acks[0].Payload["message_id"].(string)

		require.True(t, f.delivery.Advance(msgID, chatdomain.StatusDelivered))
		require.True(t, f.delivery.Advance(msgID, chatdomain.StatusRead))
		drain(st.sub)

		f.handler.failInFlight(st)

		statuses := eventsNamed(drain(st.sub), chatdomain.EventMessageStatus)
		assert.Empty(t, statuses, "no failed event for a message already read")
	})
}
