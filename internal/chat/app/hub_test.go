package app

import (
	"testing"

	"family_chat_service/internal/chat/domain"
	"family_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscriber) []domain.WSEvent {
	var out []domain.WSEvent
	for {
		select {
		case ev := <-sub.Out:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsNamed(evs []domain.WSEvent, name string) []domain.WSEvent {
	var out []domain.WSEvent
	for _, ev := range evs {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestRoomHubJoin(t *testing.T) {
	logger.SetNewNop()

	t.Run("join broadcasts snapshot and join notice to everyone", func(t *testing.T) {
		hub := NewRoomHub()
		anna := NewSubscriber("c1", "anna")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, anna)

		ben := NewSubscriber("c2", "ben")
		hub.Join("smith:kitchen", domain.Participant{Name: "ben", ConnectionID: "c2"}, ben)

		annaEvents := drain(anna)
		snapshots := eventsNamed(annaEvents, domain.EventOnlineUsers)
		require.Len(t, snapshots, 2)

		last := snapshots[len(snapshots)-1]
		participants := last.Payload["participants"].([]domain.Participant)
		require.Len(t, participants, 2)
		// snapshot is sorted by name
		assert.Equal(t, "anna", participants[0].Name)
		assert.Equal(t, "ben", participants[1].Name)

		benEvents := drain(ben)
		// the joiner also receives its own join
		joined := eventsNamed(benEvents, domain.EventUserJoined)
		require.Len(t, joined, 1)
		assert.Equal(t, "ben", joined[0].Payload["name"])
	})

	t.Run("rejoining with the same name replaces the stale entry", func(t *testing.T) {
		hub := NewRoomHub()
		old := NewSubscriber("c1", "anna")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, old)

		fresh := NewSubscriber("c2", "anna")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c2"}, fresh)

		snapshot := hub.Snapshot("smith:kitchen")
		require.Len(t, snapshot, 1)
		assert.Equal(t, "c2", snapshot[0].ConnectionID)

		// the stale connection no longer receives room traffic
		drain(old)
		hub.Broadcast("smith:kitchen", domain.WSEvent{Event: domain.EventReceiveMessage})
		assert.Empty(t, drain(old))
		assert.NotEmpty(t, eventsNamed(drain(fresh), domain.EventReceiveMessage))
	})

	t.Run("rooms with different keys share nothing", func(t *testing.T) {
		hub := NewRoomHub()
		smith := NewSubscriber("c1", "anna")
		jones := NewSubscriber("c2", "anna")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, smith)
		hub.Join("jones:kitchen", domain.Participant{Name: "anna", ConnectionID: "c2"}, jones)

		drain(smith)
		drain(jones)

		hub.Broadcast("smith:kitchen", domain.WSEvent{Event: domain.EventReceiveMessage})
		assert.NotEmpty(t, drain(smith))
		assert.Empty(t, drain(jones))

		assert.Len(t, hub.Snapshot("smith:kitchen"), 1)
		assert.Len(t, hub.Snapshot("jones:kitchen"), 1)
	})
}

func TestRoomHubLeave(t *testing.T) {
	logger.SetNewNop()

	t.Run("leave removes the participant and notifies the rest", func(t *testing.T) {
		hub := NewRoomHub()
		anna := NewSubscriber("c1", "anna")
		ben := NewSubscriber("c2", "ben")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, anna)
		hub.Join("smith:kitchen", domain.Participant{Name: "ben", ConnectionID: "c2"}, ben)
		drain(anna)

		hub.Leave("smith:kitchen", "ben", "c2")

		require.Len(t, hub.Snapshot("smith:kitchen"), 1)
		left := eventsNamed(drain(anna), domain.EventUserLeft)
		require.Len(t, left, 1)
		assert.Equal(t, "ben", left[0].Payload["name"])
	})

	t.Run("stale disconnect after a rejoin does not evict the fresh entry", func(t *testing.T) {
		hub := NewRoomHub()
		old := NewSubscriber("c1", "anna")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, old)
		fresh := NewSubscriber("c2", "anna")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c2"}, fresh)

		// the old connection's deferred cleanup fires late
		hub.Leave("smith:kitchen", "anna", "c1")

		snapshot := hub.Snapshot("smith:kitchen")
		require.Len(t, snapshot, 1)
		assert.Equal(t, "c2", snapshot[0].ConnectionID)
	})

	t.Run("leave on an unknown room is a no-op", func(t *testing.T) {
		hub := NewRoomHub()
		hub.Leave("smith:nowhere", "anna", "c1")
		assert.Empty(t, hub.Snapshot("smith:nowhere"))
	})
}

func TestRoomHubTyping(t *testing.T) {
	logger.SetNewNop()

	t.Run("typing reaches everyone except the sender", func(t *testing.T) {
		hub := NewRoomHub()
		anna := NewSubscriber("c1", "anna")
		ben := NewSubscriber("c2", "ben")
		hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, anna)
		hub.Join("smith:kitchen", domain.Participant{Name: "ben", ConnectionID: "c2"}, ben)
		drain(anna)
		drain(ben)

		hub.SetTyping("smith:kitchen", "anna", true)

		assert.Empty(t, eventsNamed(drain(anna), domain.EventUserTyping))
		typing := eventsNamed(drain(ben), domain.EventUserTyping)
		require.Len(t, typing, 1)
		assert.Equal(t, true, typing[0].Payload["is_typing"])
		assert.Equal(t, "anna", typing[0].Payload["name"])
	})
}

func TestRoomHubBroadcastOrder(t *testing.T) {
	logger.SetNewNop()

	hub := NewRoomHub()
	sub := NewSubscriber("c1", "anna")
	hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, sub)
	drain(sub)

	for i := 0; i < 10; i++ {
		hub.Broadcast("smith:kitchen", domain.WSEvent{
			Event:   domain.EventReceiveMessage,
			Payload: map[string]interface{}{"seq": i},
		})
	}

	evs := drain(sub)
	require.Len(t, evs, 10)
	for i, ev := range evs {
		assert.Equal(t, i, ev.Payload["seq"])
	}
}

func TestRoomHubSlowSubscriberDropsNotBlocks(t *testing.T) {
	logger.SetNewNop()

	hub := NewRoomHub()
	sub := NewSubscriber("c1", "anna")
	hub.Join("smith:kitchen", domain.Participant{Name: "anna", ConnectionID: "c1"}, sub)
	drain(sub)

	// nobody drains; the hub must not block once the buffer fills
	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Broadcast("smith:kitchen", domain.WSEvent{Event: domain.EventReceiveMessage})
	}
	assert.Len(t, drain(sub), subscriberBuffer)
}
