package app

import "encoding/binary"

// DefaultWaveformSamples is the bar count chat bubbles render.
const DefaultWaveformSamples = 64

// Envelope reduces 16-bit little-endian mono PCM to a fixed number of
// normalized amplitude samples in [0, 1]. Each sample is the mean absolute
// amplitude of its window, so short spikes survive downsampling better than
// with plain decimation.
func Envelope(pcm []byte, samples int) []float64 {
	if samples <= 0 {
		samples = DefaultWaveformSamples
	}
	out := make([]float64, samples)

	frames := len(pcm) / 2
	if frames == 0 {
		return out
	}

	window := frames / samples
	if window == 0 {
		window = 1
	}

	peak := 0.0
	for i := 0; i < samples; i++ {
		start := i * window
		end := start + window
		if i == samples-1 || end > frames {
			end = frames
		}
		if start >= end {
			break
		}
		sum := 0.0
		for f := start; f < end; f++ {
			v := int16(binary.LittleEndian.Uint16(pcm[f*2:]))
			a := float64(v)
			if a < 0 {
				a = -a
			}
			sum += a
		}
		out[i] = sum / float64(end-start)
		if out[i] > peak {
			peak = out[i]
		}
	}

	if peak > 0 {
		for i := range out {
			out[i] /= peak
		}
	}
	return out
}
