package audioproc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/callytics/callytics/cmd/server/internal/audio"
)

func toneClip(rate int, freq float64, seconds float64, amp float64) *audio.Clip {
	n := int(seconds * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return &audio.Clip{Samples: samples, SampleRate: rate}
}

func TestExtractFeaturesPureTone(t *testing.T) {
	clip := toneClip(16000, 440, 2.0, 0.5)

	f := ExtractFeatures(clip)

	// RMS of a 0.5-amplitude sine is 0.5/sqrt(2)
	require.InDelta(t, 0.5/math.Sqrt2, f.RMSLoudness, 0.01)

	// a 440 Hz tone crosses zero twice per cycle
	expectedZCR := 2 * 440.0 / 16000.0
	require.InDelta(t, expectedZCR, f.ZeroCrossingRate, 0.005)

	// spectral energy concentrates near the tone frequency
	require.InDelta(t, 440, f.SpectralCentroid, 50)

	// 440 Hz lands in the 250-2000 band
	require.Greater(t, f.EQ250_2000, 0.9)
	require.Less(t, f.EQ2000_6000, 0.05)
}

func TestExtractFeaturesHighTone(t *testing.T) {
	clip := toneClip(16000, 4000, 1.0, 0.4)

	f := ExtractFeatures(clip)
	require.Greater(t, f.EQ2000_6000, 0.9)
	require.InDelta(t, 4000, f.SpectralCentroid, 200)
}

func TestExtractFeaturesEmptyClip(t *testing.T) {
	f := ExtractFeatures(&audio.Clip{SampleRate: 16000})
	require.Zero(t, f.RMSLoudness)
	require.Zero(t, f.SpectralCentroid)
}

func TestExtractFeaturesBandRatiosSumToOne(t *testing.T) {
	clip := toneClip(16000, 1000, 1.0, 0.5)

	f := ExtractFeatures(clip)
	sum := f.EQ20_250 + f.EQ250_2000 + f.EQ2000_6000 + f.EQ6000_20000
	// DC and sub-20 Hz bins fall outside the bands, so slightly under 1
	require.InDelta(t, 1.0, sum, 0.05)
}

func TestMelFilterbankShape(t *testing.T) {
	filters := melFilterbank(1025, numMels, 16000)
	require.Len(t, filters, numMels)
	for _, filter := range filters {
		require.Len(t, filter, 1025)
		var peak float64
		for _, w := range filter {
			require.GreaterOrEqual(t, w, 0.0)
			require.LessOrEqual(t, w, 1.0)
			if w > peak {
				peak = w
			}
		}
		require.Greater(t, peak, 0.0)
	}
}

func TestMFCCFinite(t *testing.T) {
	clip := toneClip(16000, 300, 1.0, 0.3)
	f := ExtractFeatures(clip)
	for i, c := range f.MFCC {
		require.Falsef(t, math.IsNaN(c) || math.IsInf(c, 0), "mfcc %d not finite", i)
	}
}
