package domain

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"family_chat_service/pkg"
)

// FileKind coarse attachment category shown by chat bubbles
const (
	FileKindImage    = "image"
	FileKindVideo    = "video"
	FileKindAudio    = "audio"
	FileKindDocument = "document"
	FileKindOther    = "other"
)

// FileAttachment descriptor row for every uploaded blob
type FileAttachment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	FileName      string    `gorm:"not null" json:"file_name"`
	FileSizeBytes int64     `gorm:"not null" json:"file_size_bytes"`
	MimeType      string    `json:"mime_type"`
	FileKind      string    `gorm:"index" json:"file_kind"`
	FileRef       string    `gorm:"uniqueIndex;not null" json:"file_ref"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadReq incoming attachment stream plus what the client claims about it
type UploadReq struct {
	FileName string
	MimeType string
	File     io.Reader
}

// WaveformJob queued work item for a voice note missing its waveform
type WaveformJob struct {
	MessageID string `json:"message_id"`
	Room      string `json:"room_id"`
	FileRef   string `json:"file_ref"`
}

// VoiceNote finished recording ready to be sent as a voice message
type VoiceNote struct {
	AudioRef        string
	DurationSeconds float64
	Waveform        []float64
}

var (
	imageExts    = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".heic"}
	videoExts    = []string{".mp4", ".mov", ".mkv", ".avi", ".webm"}
	audioExts    = []string{".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac"}
	documentExts = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv"}
)

// ClassifyFileKind maps a mime type and file name onto a FileKind. The mime
// type wins; the extension is the fallback for octet-stream uploads.
func ClassifyFileKind(mimeType, fileName string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileKindImage
	case strings.HasPrefix(mimeType, "video/"):
		return FileKindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return FileKindAudio
	case mimeType == "application/pdf":
		return FileKindDocument
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case pkg.Contains(imageExts, ext):
		return FileKindImage
	case pkg.Contains(videoExts, ext):
		return FileKindVideo
	case pkg.Contains(audioExts, ext):
		return FileKindAudio
	case pkg.Contains(documentExts, ext):
		return FileKindDocument
	}
	return FileKindOther
}
