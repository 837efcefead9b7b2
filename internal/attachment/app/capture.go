package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"family_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Capture failure categories, ordered from most to least specific. When
// several strategies fail, the caller is told the most specific reason.
const (
	CategoryPermissionDenied = "permission-denied"
	CategoryNoDevice         = "no-device"
	CategoryUnsupported      = "unsupported"
)

var categoryRank = map[string]int{
	CategoryPermissionDenied: 3,
	CategoryNoDevice:         2,
	CategoryUnsupported:      1,
}

// CaptureError classifies why an audio source could not be opened.
type CaptureError struct {
	Category string
	Strategy string
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s: %s (%v)", e.Strategy, e.Category, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// AudioCapture is an open audio source producing 16-bit LE mono PCM chunks.
type AudioCapture interface {
	// Start begins capture; the channel closes when the source ends or ctx
	// is cancelled.
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
	SampleRate() int
}

// CaptureStrategy is one way of opening an audio source. Open returns a
// CaptureError when the failure is classifiable.
type CaptureStrategy struct {
	Name string
	Open func(ctx context.Context) (AudioCapture, error)
}

// ErrNoCaptureStrategy no strategy was offered at all
var ErrNoCaptureStrategy = errors.New("no capture strategy available")

// NegotiateCapture tries strategies in order and returns the first source
// that opens. When all fail, the error with the most specific category wins
// so a denied permission is never masked by a generic fallback failure.
func NegotiateCapture(ctx context.Context, strategies []CaptureStrategy) (AudioCapture, error) {
	if len(strategies) == 0 {
		return nil, ErrNoCaptureStrategy
	}

	var best *CaptureError
	for _, s := range strategies {
		src, err := s.Open(ctx)
		if err == nil {
			logger.Log.Info("audio capture opened", zap.String("strategy", s.Name))
			return src, nil
		}

		var ce *CaptureError
		if !errors.As(err, &ce) {
			ce = &CaptureError{Category: CategoryUnsupported, Strategy: s.Name, Err: err}
		}
		logger.Log.Warn("capture strategy failed",
			zap.String("strategy", s.Name),
			zap.String("category", ce.Category))
		if best == nil || categoryRank[ce.Category] > categoryRank[best.Category] {
			best = ce
		}
	}
	return nil, best
}

// MinRecordingSeconds is the floor reported for any finished recording, so
// a tap-release still produces a playable note.
const MinRecordingSeconds = 0.1

// Recorder accumulates PCM chunks from a capture source into a voice note.
type Recorder struct {
	mu         sync.Mutex
	sampleRate int
	pcm        []byte
	done       bool
}

// NewRecorder create Recorder for a source's sample rate
func NewRecorder(sampleRate int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Recorder{sampleRate: sampleRate}
}

// Write appends one captured chunk. Chunks after Cancel or Finish are dropped.
func (r *Recorder) Write(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.pcm = append(r.pcm, chunk...)
}

// DurationSeconds reports the accumulated length so a UI can show a timer.
func (r *Recorder) DurationSeconds() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durationLocked()
}

func (r *Recorder) durationLocked() float64 {
	// 16-bit mono: two bytes per frame
	return float64(len(r.pcm)/2) / float64(r.sampleRate)
}

// Cancel discards everything recorded so far. Nothing is sent or stored.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.pcm = nil
}

// Finish seals the recording and returns the raw PCM, the clamped duration
// and the render-ready waveform envelope.
func (r *Recorder) Finish() (pcm []byte, durationSeconds float64, waveform []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	durationSeconds = r.durationLocked()
	if durationSeconds < MinRecordingSeconds {
		durationSeconds = MinRecordingSeconds
	}
	return r.pcm, durationSeconds, Envelope(r.pcm, DefaultWaveformSamples)
}
