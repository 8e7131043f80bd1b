// Package diarize defines the speaker-diarization interface and common types
// for attributing time ranges to speakers.
package diarize

import "context"

// Request holds parameters for a diarization call.
type Request struct {
	// AudioPath is the path to the audio file to diarize.
	AudioPath string `json:"audio_path"`
	// NumSpeakers is the exact number of speakers (0 = auto-detect).
	NumSpeakers int `json:"num_speakers,omitempty"`
	// MinSpeakers is the minimum expected number of speakers.
	MinSpeakers int `json:"min_speakers,omitempty"`
	// MaxSpeakers is the maximum expected number of speakers.
	MaxSpeakers int `json:"max_speakers,omitempty"`
}

// Segment is a speaker-attributed time range. Speaker ids are local to the
// call (SPEAKER_00, SPEAKER_01, ...), not global identities.
type Segment struct {
	// Speaker is the local speaker label.
	Speaker string `json:"speaker"`
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds.
	End float64 `json:"end"`
}

// Response holds the result of a diarization call.
type Response struct {
	// Segments contains speaker-attributed time segments in start order.
	Segments []Segment `json:"segments"`
	// NumSpeakers is the number of speakers detected.
	NumSpeakers int `json:"num_speakers"`
}

// Diarizer is the interface diarization backends implement. A failure of
// this stage is fatal to the run.
type Diarizer interface {
	// Diarize sends audio for speaker diarization and returns the result.
	Diarize(ctx context.Context, req Request) (*Response, error)

	// HealthCheck reports whether the backing service can take requests.
	HealthCheck(ctx context.Context) (bool, error)

	// Name identifies the implementation in logs and health reports.
	Name() string
}
