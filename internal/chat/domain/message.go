package domain

import "errors"

// MessageKind definition message kind
type MessageKind string

const (
	// KindText plain text message
	KindText MessageKind = "text"
	// KindSystem transient join/leave notice, never persisted, never transitions status
	KindSystem MessageKind = "system"
	// KindVoice voice note message
	KindVoice MessageKind = "voice"
	// KindFile file attachment message
	KindFile MessageKind = "file"
)

// DeliveryStatus per-message lifecycle state
type DeliveryStatus string

const (
	// StatusSending message created, not yet persisted/acknowledged
	StatusSending DeliveryStatus = "sending"
	// StatusSent message accepted by the broker
	StatusSent DeliveryStatus = "sent"
	// StatusDelivered message reached the connected recipients
	StatusDelivered DeliveryStatus = "delivered"
	// StatusRead recipient client reported visibility
	StatusRead DeliveryStatus = "read"
	// StatusFailed terminal failure, reachable from sending/sent only
	StatusFailed DeliveryStatus = "failed"
)

var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Rank returns the ordering position of a non-failed status, -1 for failed/unknown.
func (s DeliveryStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// VoiceBody voice note payload
type VoiceBody struct {
	AudioRef        string    `bson:"audio_ref" json:"audio_ref"`
	DurationSeconds float64   `bson:"duration_seconds" json:"duration_seconds"`
	Waveform        []float64 `bson:"waveform" json:"waveform"`
}

// FileBody file attachment payload
type FileBody struct {
	FileName      string `bson:"file_name" json:"file_name"`
	FileSizeBytes int64  `bson:"file_size_bytes" json:"file_size_bytes"`
	MimeType      string `bson:"mime_type" json:"mime_type"`
	FileKind      string `bson:"file_kind" json:"file_kind"`
	FileRef       string `bson:"file_ref" json:"file_ref"`
}

// Message one chat message within a room
type Message struct {
	ID        string         `bson:"id" json:"id"`
	Room      string         `bson:"room_id" json:"room"`
	Sender    string         `bson:"sender" json:"sender"`
	CreatedAt int64          `bson:"created_at" json:"created_at"` // unix milliseconds
	Kind      MessageKind    `bson:"kind" json:"kind"`
	Status    DeliveryStatus `bson:"status" json:"status"`

	Content string     `bson:"content,omitempty" json:"content,omitempty"`
	Voice   *VoiceBody `bson:"voice,omitempty" json:"voice,omitempty"`
	File    *FileBody  `bson:"file,omitempty" json:"file,omitempty"`
}

// Validation errors rejected synchronously by the broker.
var (
	ErrEmptySender = errors.New("sender name is required")
	ErrEmptyRoom   = errors.New("room is required")
	ErrEmptyBody   = errors.New("message body is required for its kind")
	ErrUnknownKind = errors.New("unknown message kind")
)

// Validate checks that a content-bearing kind carries a non-empty body.
func (m *Message) Validate() error {
	if m.Sender == "" {
		return ErrEmptySender
	}
	if m.Room == "" {
		return ErrEmptyRoom
	}
	switch m.Kind {
	case KindText, KindSystem:
		if m.Content == "" {
			return ErrEmptyBody
		}
	case KindVoice:
		if m.Voice == nil || m.Voice.AudioRef == "" {
			return ErrEmptyBody
		}
	case KindFile:
		if m.File == nil || m.File.FileRef == "" {
			return ErrEmptyBody
		}
	default:
		return ErrUnknownKind
	}
	return nil
}
