package audioproc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/callytics/callytics/cmd/server/internal/audio"
)

func defaultThresholds() DialogueThresholds {
	return DialogueThresholds{
		MinDuration:   5 * time.Second,
		MinTurnCount:  3,
		MinSilenceGap: 300 * time.Millisecond,
	}
}

// burstClip builds a clip that alternates speech bursts (440 Hz tone) with
// silent gaps, starting with silence.
func burstClip(rate int, bursts int, burstSec, gapSec float64) *audio.Clip {
	var samples []float64
	gap := make([]float64, int(gapSec*float64(rate)))
	for i := 0; i < bursts; i++ {
		samples = append(samples, gap...)
		n := int(burstSec * float64(rate))
		for j := 0; j < n; j++ {
			samples = append(samples, 0.6*math.Sin(2*math.Pi*440*float64(j)/float64(rate)))
		}
	}
	samples = append(samples, gap...)
	return &audio.Clip{Samples: samples, SampleRate: rate}
}

func TestCheckDialogueAcceptsTurnTaking(t *testing.T) {
	clip := burstClip(16000, 4, 1.0, 0.6)

	report := CheckDialogue(clip, defaultThresholds())
	require.True(t, report.HasDialogue)
	require.Empty(t, report.Reason)
	require.GreaterOrEqual(t, report.TurnCount, 3)
	require.Greater(t, report.SilenceSeconds, 1.0)
}

func TestCheckDialogueRejectsShortClip(t *testing.T) {
	clip := burstClip(16000, 2, 0.5, 0.5)

	report := CheckDialogue(clip, defaultThresholds())
	require.False(t, report.HasDialogue)
	require.Contains(t, report.Reason, "duration")
}

func TestCheckDialogueRejectsMonologue(t *testing.T) {
	// one long burst, no turn-taking
	clip := burstClip(16000, 1, 6.0, 0.5)

	report := CheckDialogue(clip, defaultThresholds())
	require.False(t, report.HasDialogue)
	require.Contains(t, report.Reason, "speaker turns")
}

func TestCheckDialogueSilenceBelowGapDoesNotCount(t *testing.T) {
	// gaps shorter than MinSilenceGap must not register extra turns
	clip := burstClip(16000, 6, 1.0, 0.1)

	th := defaultThresholds()
	report := CheckDialogue(clip, th)
	require.False(t, report.HasDialogue)
	require.LessOrEqual(t, report.TurnCount, 1)
}

func TestFrameRMSTooShort(t *testing.T) {
	clip := &audio.Clip{Samples: make([]float64, 10), SampleRate: 16000}
	require.Nil(t, frameRMS(clip))
}
