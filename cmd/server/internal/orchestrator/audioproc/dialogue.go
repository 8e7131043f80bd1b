// Package audioproc implements the signal-level pipeline stages: the
// dialogue-presence check, best-effort enhancement and vocal separation, and
// acoustic feature extraction.
package audioproc

import (
	"fmt"
	"math"
	"time"

	"github.com/callytics/callytics/cmd/server/internal/audio"
)

// Frame sizing for energy analysis: 25 ms windows with a 10 ms hop.
const (
	frameSeconds = 0.025
	hopSeconds   = 0.010
)

// speechThresholdRatio scales the mean RMS to get the speech/silence cut.
const speechThresholdRatio = 0.5

// DialogueThresholds are the rejection thresholds for the dialogue check.
type DialogueThresholds struct {
	MinDuration   time.Duration
	MinTurnCount  int
	MinSilenceGap time.Duration
}

// DialogueReport is the outcome of the dialogue-presence check plus the
// frame statistics reused by later stages.
type DialogueReport struct {
	HasDialogue    bool
	Reason         string // set when HasDialogue is false
	TurnCount      int
	SilenceSeconds float64
	NoiseLevel     float64 // mean RMS over non-speech frames
}

// frameRMS computes per-frame root-mean-square energy.
func frameRMS(clip *audio.Clip) []float64 {
	frameLen := int(frameSeconds * float64(clip.SampleRate))
	hop := int(hopSeconds * float64(clip.SampleRate))
	if frameLen < 1 || hop < 1 || len(clip.Samples) < frameLen {
		return nil
	}

	n := (len(clip.Samples)-frameLen)/hop + 1
	rms := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, s := range clip.Samples[i*hop : i*hop+frameLen] {
			sum += s * s
		}
		rms[i] = math.Sqrt(sum / float64(frameLen))
	}
	return rms
}

// CheckDialogue classifies whether the recording contains genuine
// multi-speaker turn-taking. A turn is a speech onset that follows at least
// MinSilenceGap of silence; recordings with fewer than MinTurnCount turns
// (or shorter than MinDuration) do not qualify for analysis.
func CheckDialogue(clip *audio.Clip, th DialogueThresholds) DialogueReport {
	report := DialogueReport{}

	if clip.Duration() < th.MinDuration {
		report.Reason = fmt.Sprintf("below duration threshold (%.1fs < %s)", clip.Seconds(), th.MinDuration)
		return report
	}

	rms := frameRMS(clip)
	if len(rms) == 0 {
		report.Reason = "recording too short for frame analysis"
		return report
	}

	var mean float64
	for _, v := range rms {
		mean += v
	}
	mean /= float64(len(rms))
	threshold := mean * speechThresholdRatio

	minSilenceFrames := int(th.MinSilenceGap.Seconds() / hopSeconds)

	var (
		turnCount     int
		silenceCount  int
		silenceFrames int
		noiseSum      float64
		noiseFrames   int
		inSpeech      bool
	)
	for _, v := range rms {
		if v > threshold {
			if !inSpeech && silenceCount >= minSilenceFrames {
				turnCount++
			}
			inSpeech = true
			silenceCount = 0
		} else {
			if inSpeech {
				silenceCount = 1
				inSpeech = false
			} else {
				silenceCount++
			}
			silenceFrames++
			noiseSum += v
			noiseFrames++
		}
	}

	report.TurnCount = turnCount
	report.SilenceSeconds = float64(silenceFrames) * hopSeconds
	if noiseFrames > 0 {
		report.NoiseLevel = noiseSum / float64(noiseFrames)
	}

	if turnCount < th.MinTurnCount {
		report.Reason = fmt.Sprintf("insufficient speaker turns (%d < %d)", turnCount, th.MinTurnCount)
		return report
	}

	report.HasDialogue = true
	return report
}
