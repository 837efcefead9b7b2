package repository

import (
	"context"
	"encoding/json"

	"family_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// EventArchive mirrors broadcast messages to the platform event stream.
// Writes are fire-and-forget from the broker: a failed archive write is
// logged upstream and never blocks delivery.
type EventArchive interface {
	Archive(ctx context.Context, msg domain.Message) error
}

type kafkaEventArchive struct {
	writer *kafka.Writer
}

// NewKafkaEventArchive create an EventArchive over a kafka writer
func NewKafkaEventArchive(writer *kafka.Writer) EventArchive {
	return &kafkaEventArchive{writer: writer}
}

func (a *kafkaEventArchive) Archive(ctx context.Context, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Room),
		Value: data,
	})
}
