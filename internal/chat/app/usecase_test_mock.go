package app

import (
	"context"

	"family_chat_service/internal/chat/domain"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"
)

// MockMessageRepository mocks the mongo history repository
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) Recent(ctx context.Context, roomID string, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockMessageRepository) UpdateVoiceWaveform(ctx context.Context, roomID, msgID string, waveform []float64) error {
	args := m.Called(ctx, roomID, msgID, waveform)
	return args.Error(0)
}

// MockPubSub mocks the cross-node redis fan-out
type MockPubSub struct {
	mock.Mock
}

func (m *MockPubSub) Publish(roomID string, msg domain.Message) error {
	args := m.Called(roomID, msg)
	return args.Error(0)
}

func (m *MockPubSub) SubscribeRooms(ctx context.Context, handler func(env domain.RoomEnvelope)) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

func (m *MockPubSub) Origin() string {
	args := m.Called()
	return args.String(0)
}

// MockEventArchive mocks the kafka archive writer
type MockEventArchive struct {
	mock.Mock
}

func (m *MockEventArchive) Archive(ctx context.Context, msg domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockRabbitRepo mocks the waveform job queue
type MockRabbitRepo struct {
	mock.Mock
}

func (m *MockRabbitRepo) GetRabbit() *amqp.Channel {
	args := m.Called()
	return args.Get(0).(*amqp.Channel)
}

func (m *MockRabbitRepo) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockRabbitRepo) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	called := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).(<-chan amqp.Delivery), called.Error(1)
}
