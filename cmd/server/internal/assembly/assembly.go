// Package assembly merges word-level transcription output with speaker
// diarization segments into ordered, speaker-attributed utterances.
package assembly

import (
	"fmt"
	"math"
	"strings"

	"github.com/callytics/callytics/cmd/server/internal/orchestrator/asr"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/diarize"
	"github.com/callytics/callytics/cmd/server/internal/store"
)

// Assemble assigns each transcribed word to a diarization segment by its
// midpoint, then groups consecutive same-speaker words into utterances with
// gapless zero-based sequence numbers.
//
// Assignment rules:
//   - a word belongs to the segment containing its midpoint; when several
//     overlapping segments contain it, the one with the earliest start wins
//   - a word covered by no segment goes to the segment with the nearest
//     boundary; on an exact distance tie the earlier segment wins
func Assemble(fileID int64, words []asr.Word, segments []diarize.Segment) ([]store.Utterance, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no diarization segments")
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("no transcribed words")
	}

	type assigned struct {
		word    asr.Word
		segment int
	}
	assignments := make([]assigned, 0, len(words))
	for _, w := range words {
		idx := assignSegment(w, segments)
		assignments = append(assignments, assigned{word: w, segment: idx})
	}

	var utterances []store.Utterance
	var current []asr.Word
	currentSeg := -1

	flush := func() {
		if len(current) == 0 {
			return
		}
		utterances = append(utterances, store.Utterance{
			FileID:    fileID,
			Speaker:   segments[currentSeg].Speaker,
			Sequence:  len(utterances),
			StartTime: current[0].Start,
			EndTime:   current[len(current)-1].End,
			Content:   joinWords(current),
		})
		current = current[:0]
	}

	for _, a := range assignments {
		sameSpeaker := currentSeg >= 0 && segments[a.segment].Speaker == segments[currentSeg].Speaker
		if !sameSpeaker {
			flush()
		}
		currentSeg = a.segment
		current = append(current, a.word)
	}
	flush()

	return utterances, nil
}

// assignSegment picks the segment index for one word.
func assignSegment(w asr.Word, segments []diarize.Segment) int {
	mid := (w.Start + w.End) / 2

	best := -1
	for i, s := range segments {
		if mid >= s.Start && mid < s.End {
			if best < 0 || s.Start < segments[best].Start {
				best = i
			}
		}
	}
	if best >= 0 {
		return best
	}

	// uncovered word: nearest boundary, earlier segment on ties
	bestDist := math.Inf(1)
	for i, s := range segments {
		d := math.Min(math.Abs(mid-s.Start), math.Abs(mid-s.End))
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// joinWords concatenates word texts with single spaces and normalizes
// whitespace around punctuation.
func joinWords(words []asr.Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		t := strings.TrimSpace(w.Text)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return normalizePunctuation(strings.Join(parts, " "))
}

// normalizePunctuation removes spaces that precede closing punctuation, so
// "hello , world ." becomes "hello, world."
func normalizePunctuation(s string) string {
	for _, p := range []string{",", ".", "!", "?", ";", ":"} {
		s = strings.ReplaceAll(s, " "+p, p)
	}
	return strings.Join(strings.Fields(s), " ")
}
