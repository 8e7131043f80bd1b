package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// LoadMP3 decodes an MP3 file into a mono clip. go-mp3 always emits signed
// 16-bit stereo PCM, so the two channels are averaged.
func LoadMP3(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	// 4 bytes per frame: 16-bit little-endian, 2 channels interleaved.
	n := len(pcm) / 4
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		samples[i] = (float64(l) + float64(r)) / 2 / 32768.0
	}

	return &Clip{
		Samples:    samples,
		SampleRate: dec.SampleRate(),
	}, nil
}
