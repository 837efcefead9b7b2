package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"family_chat_service/internal/attachment/domain"
	chatrepo "family_chat_service/internal/chat/repository"
	"family_chat_service/pkg/database"
	"family_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WaveformConsumer drains the waveform job queue: voice notes uploaded
// without an envelope get one computed server side and patched into the
// stored message.
type WaveformConsumer struct {
	rabbit      database.RabbitRepo
	minioClient database.MinIOClientRepo
	msgRepo     chatrepo.MessageRepository
	queueName   string
}

// NewWaveformConsumer create WaveformConsumer
func NewWaveformConsumer(
	rabbit database.RabbitRepo,
	minioClient database.MinIOClientRepo,
	msgRepo chatrepo.MessageRepository,
	queueName string,
) *WaveformConsumer {
	return &WaveformConsumer{
		rabbit:      rabbit,
		minioClient: minioClient,
		msgRepo:     msgRepo,
		queueName:   queueName,
	}
}

// StartConsumer consumes jobs until ctx is cancelled. Failed jobs are
// nacked back onto the queue after a short pause.
func (c *WaveformConsumer) StartConsumer(ctx context.Context) {
	msgs, err := c.rabbit.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		logger.Log.Errorf("waveform consumer start failed:", err)
		return
	}

	logger.Log.Info("waveform consumer started", zap.String("queue", c.queueName))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("waveform job channel closed")
				return
			}

			var job domain.WaveformJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				logger.Log.Errorf("waveform job unmarshal failed:", err)
				// malformed jobs never become parseable, drop them
				if err := d.Nack(false, false); err != nil {
					logger.Log.Errorf("nack failed:", err)
				}
				continue
			}

			if err := c.process(ctx, job); err != nil {
				logger.Log.Errorf("waveform job failed:", err,
					zap.String("message_id", job.MessageID))
				time.Sleep(5 * time.Second)
				if err := d.Nack(false, true); err != nil {
					logger.Log.Errorf("nack failed:", err)
				}
				continue
			}

			if err := d.Ack(false); err != nil {
				logger.Log.Errorf("ack failed:", err)
			}
		case <-ctx.Done():
			logger.Log.Info("waveform consumer stopped")
			return
		}
	}
}

// process downloads the voice blob, computes the envelope and patches the
// stored message. The temp file is removed whatever happens.
func (c *WaveformConsumer) process(ctx context.Context, job domain.WaveformJob) error {
	localPath := filepath.Join(os.TempDir(), "waveform_"+uuid.New().String())
	defer os.Remove(localPath)

	if err := c.minioClient.DownloadFile(ctx, job.FileRef, localPath); err != nil {
		return err
	}

	pcm, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	waveform := Envelope(pcm, DefaultWaveformSamples)
	return c.msgRepo.UpdateVoiceWaveform(ctx, job.Room, job.MessageID, waveform)
}
