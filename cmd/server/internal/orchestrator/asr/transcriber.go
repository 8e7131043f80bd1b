// Package asr provides an abstraction layer for speech-to-text services with
// word-level timestamp alignment. It defines a standard interface so the run
// controller can work against an HTTP whisper service in production and a
// mock in tests.
package asr

import (
	"context"
	"time"
)

// Word is a single aligned token with timing offsets in seconds from the
// start of the audio.
type Word struct {
	// Text is the token text without surrounding whitespace.
	Text string `json:"text"`

	// Start is the word onset in seconds.
	Start float64 `json:"start"`

	// End is the word offset in seconds.
	End float64 `json:"end"`

	// Confidence is the model's confidence in [0,1]; negative when the
	// backend does not report one.
	Confidence float64 `json:"confidence"`
}

// Result is the complete output of a transcription+alignment call.
type Result struct {
	// Words is the ordered sequence of aligned words.
	Words []Word `json:"words"`

	// Text is the full transcript.
	Text string `json:"text"`

	// Language is the detected or forced language code (e.g. "en").
	Language string `json:"language"`

	// Duration is the audio duration in seconds as reported by the backend.
	Duration float64 `json:"duration"`
}

// Options are optional parameters for a Transcribe call. All fields are
// optional; implementations provide defaults.
type Options struct {
	// Model selects the ASR model (e.g. "large-v3").
	Model string

	// Language forces a language (ISO 639-1); empty means auto-detect.
	Language string

	// Device and ComputePrecision are forwarded to backends that honor
	// them ("auto"/"cpu"/"cuda", "float16"/"float32"/"int8").
	Device           string
	ComputePrecision string

	// Timeout overrides the default transcription timeout.
	Timeout time.Duration
}

// Transcriber is the interface the run controller depends on. A failure of
// this stage is fatal to the run: there is no meaningful fallback for a
// missing transcript.
type Transcriber interface {
	// Transcribe transcribes and word-aligns the audio file at wavPath.
	// Implementations must respect ctx cancellation and return an empty
	// Words slice (not an error) for silent audio.
	Transcribe(ctx context.Context, wavPath string, options *Options) (*Result, error)

	// HealthCheck reports whether the backing service can take requests.
	HealthCheck(ctx context.Context) (bool, error)

	// Name identifies the implementation in logs and health reports.
	Name() string
}
