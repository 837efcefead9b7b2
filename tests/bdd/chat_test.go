package bdd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"family_chat_service/internal/chat/app"
	"family_chat_service/internal/chat/domain"
	"family_chat_service/pkg/logger"

	"github.com/cucumber/godog"
)

const chatFeature = `
Feature: family room chat
  In order to keep the family in touch
  As a family member
  I want room messages, presence and delivery status to behave predictably

  Scenario: messages fan out to everyone in the room
    Given "anna" is in room "kitchen"
    And "ben" is in room "kitchen"
    When "anna" sends "dinner at 7" to room "kitchen"
    Then "anna" receives "dinner at 7" in room "kitchen"
    And "ben" receives "dinner at 7" in room "kitchen"

  Scenario: rooms are isolated
    Given "anna" is in room "kitchen"
    And "ben" is in room "garage"
    When "anna" sends "hello" to room "kitchen"
    Then "ben" receives nothing

  Scenario: typing indicators skip the sender
    Given "anna" is in room "kitchen"
    And "ben" is in room "kitchen"
    When "anna" starts typing in room "kitchen"
    Then "ben" sees "anna" typing
    And "anna" sees nobody typing

  Scenario: delivery status moves forward only
    Given "anna" is in room "kitchen"
    When "anna" sends "status check" to room "kitchen"
    Then the message status becomes "sent"
`

// memoryMessages is a MessageRepository that keeps everything in a slice.
type memoryMessages struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (m *memoryMessages) Append(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memoryMessages) Recent(ctx context.Context, roomID string, limit int64) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.msgs {
		if msg.Room == roomID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryMessages) UpdateVoiceWaveform(ctx context.Context, roomID, msgID string, waveform []float64) error {
	return nil
}

// chatWorld holds per-scenario state.
type chatWorld struct {
	hub      *app.RoomHub
	delivery *app.DeliveryTracker
	uc       *app.SendMessageUseCase
	subs     map[string]*app.Subscriber
	lastMsg  domain.Message
}

func newChatWorld() *chatWorld {
	hub := app.NewRoomHub()
	delivery := app.NewDeliveryTracker(hub, time.Hour)
	return &chatWorld{
		hub:      hub,
		delivery: delivery,
		uc:       app.NewSendMessageUseCase(hub, &memoryMessages{}, nil, nil, delivery),
		subs:     make(map[string]*app.Subscriber),
	}
}

func (w *chatWorld) drain(name string) []domain.WSEvent {
	sub := w.subs[name]
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

func (w *chatWorld) memberIsInRoom(name, room string) error {
	sub := app.NewSubscriber("conn-"+name, name)
	w.subs[name] = sub
	w.hub.Join(room, domain.Participant{Name: name, ConnectionID: sub.ConnID}, sub)
	w.drain(name)
	return nil
}

func (w *chatWorld) memberSends(name, content, room string) error {
	msg, err := w.uc.Execute(context.Background(), room, name, domain.WSRequest{
		Kind:    string(domain.KindText),
		Content: content,
	})
	if err != nil {
		return err
	}
	w.lastMsg = msg
	return nil
}

func (w *chatWorld) memberReceives(name, content, room string) error {
	for _, ev := range w.drain(name) {
		if ev.Event != domain.EventReceiveMessage {
			continue
		}
		msg, ok := ev.Payload["message"].(domain.Message)
		if ok && msg.Room == room && msg.Content == content {
			return nil
		}
	}
	return fmt.Errorf("%q never received %q in %q", name, content, room)
}

func (w *chatWorld) memberReceivesNothing(name string) error {
	for _, ev := range w.drain(name) {
		if ev.Event == domain.EventReceiveMessage {
			return fmt.Errorf("%q unexpectedly received a message", name)
		}
	}
	return nil
}

func (w *chatWorld) memberStartsTyping(name, room string) error {
	w.hub.SetTyping(room, name, true)
	return nil
}

func (w *chatWorld) memberSeesTyping(observer, typist string) error {
	for _, ev := range w.drain(observer) {
		if ev.Event == domain.EventUserTyping && ev.Payload["name"] == typist {
			return nil
		}
	}
	return fmt.Errorf("%q never saw %q typing", observer, typist)
}

func (w *chatWorld) memberSeesNobodyTyping(name string) error {
	for _, ev := range w.drain(name) {
		if ev.Event == domain.EventUserTyping {
			return fmt.Errorf("%q saw a typing indicator", name)
		}
	}
	return nil
}

func (w *chatWorld) statusBecomes(status string) error {
	st, ok := w.delivery.Status(w.lastMsg.ID)
	if !ok {
		return fmt.Errorf("message %s is not tracked", w.lastMsg.ID)
	}
	if string(st) != status {
		return fmt.Errorf("status is %q, want %q", st, status)
	}
	return nil
}

// InitializeChatScenario wires the chat steps.
func InitializeChatScenario(ctx *godog.ScenarioContext) {
	var w *chatWorld
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		w = newChatWorld()
		return c, nil
	})

	ctx.Step(`^"([^"]*)" is in room "([^"]*)"$`, func(name, room string) error {
		return w.memberIsInRoom(name, room)
	})
	ctx.Step(`^"([^"]*)" sends "([^"]*)" to room "([^"]*)"$`, func(name, content, room string) error {
		return w.memberSends(name, content, room)
	})
	ctx.Step(`^"([^"]*)" receives "([^"]*)" in room "([^"]*)"$`, func(name, content, room string) error {
		return w.memberReceives(name, content, room)
	})
	ctx.Step(`^"([^"]*)" receives nothing$`, func(name string) error {
		return w.memberReceivesNothing(name)
	})
	ctx.Step(`^"([^"]*)" starts typing in room "([^"]*)"$`, func(name, room string) error {
		return w.memberStartsTyping(name, room)
	})
	ctx.Step(`^"([^"]*)" sees "([^"]*)" typing$`, func(observer, typist string) error {
		return w.memberSeesTyping(observer, typist)
	})
	ctx.Step(`^"([^"]*)" sees nobody typing$`, func(name string) error {
		return w.memberSeesNobodyTyping(name)
	})
	ctx.Step(`^the message status becomes "([^"]*)"$`, func(status string) error {
		return w.statusBecomes(status)
	})
}

func TestChatFeatures(t *testing.T) {
	logger.SetNewNop()

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeChatScenario,
		Options: &godog.Options{
			FeatureContents: []godog.Feature{
				{Name: "chat", Contents: []byte(chatFeature)},
			},
			Format:   "pretty",
			Output:   os.Stdout,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("chat feature suite failed")
	}
}
