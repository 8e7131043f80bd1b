// Package audio decodes call recordings into mono sample buffers for the
// signal-level pipeline stages (dialogue check, silence accounting, feature
// extraction). WAV and MP3 inputs are supported; everything downstream works
// on mono float64 samples in [-1, 1].
package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Clip is a decoded mono waveform.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the clip length in seconds.
func (c *Clip) Seconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Load decodes an audio file by extension.
func Load(path string) (*Clip, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return LoadWAV(path)
	case ".mp3":
		return LoadMP3(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}
}

// downmix interleaved int16 PCM to mono float64.
func downmixPCM16(pcm []byte, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	frame := 2 * channels
	n := len(pcm) / frame
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			off := i*frame + ch*2
			s := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
			sum += float64(s) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}
