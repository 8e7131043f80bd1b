package orchestrator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/callytics/callytics/cmd/server/internal/analytics"
	"github.com/callytics/callytics/cmd/server/internal/audio"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/asr"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/audioproc"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/diarize"
	"github.com/callytics/callytics/cmd/server/internal/store"
)

// mockDiarizer returns canned segments or an error.
type mockDiarizer struct {
	segments []diarize.Segment
	err      error
}

func (m *mockDiarizer) Diarize(ctx context.Context, req diarize.Request) (*diarize.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &diarize.Response{Segments: m.segments, NumSpeakers: 2}, nil
}

func (m *mockDiarizer) HealthCheck(ctx context.Context) (bool, error) { return m.err == nil, nil }
func (m *mockDiarizer) Name() string                                  { return "mock-diarizer" }

// scriptedChat routes prompts to canned replies by keyword.
type scriptedChat struct {
	replies map[string]string
	err     error
}

func (c *scriptedChat) Complete(ctx context.Context, prompt string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	for key, reply := range c.replies {
		if strings.Contains(prompt, key) {
			return reply, nil
		}
	}
	return "", fmt.Errorf("no scripted reply")
}

func workingChat() *scriptedChat {
	return &scriptedChat{replies: map[string]string{
		"agent and which is the customer": `{"SPEAKER_00": "Agent", "SPEAKER_01": "Customer"}`,
		"sentiment of each":               `[{"index":0,"sentiment":"Neutral"},{"index":1,"sentiment":"Negative"}]`,
		"contains profanity":              `[false, false]`,
		"Summarize":                       "An agent helped a customer with a billing issue.",
		"conflict or escalation":          `{"conflict": false}`,
		"main topic":                      `{"topic": "Billing"}`,
	}}
}

// writeDialogueWAV writes a 7-second recording with four tone bursts
// separated by 600 ms of silence, enough turn-taking to pass the dialogue
// check.
func writeDialogueWAV(t *testing.T, dir string) string {
	t.Helper()
	rate := 16000
	var samples []float64
	gap := make([]float64, int(0.6*float64(rate)))
	for b := 0; b < 4; b++ {
		samples = append(samples, gap...)
		for j := 0; j < rate; j++ {
			samples = append(samples, 0.5*math.Sin(2*math.Pi*440*float64(j)/float64(rate)))
		}
	}
	samples = append(samples, gap...)

	path := filepath.Join(dir, "call.wav")
	require.NoError(t, audio.WriteWAV(path, &audio.Clip{Samples: samples, SampleRate: rate}))
	return path
}

func testWords() []asr.Word {
	return []asr.Word{
		{Text: "hello", Start: 0.7, End: 1.1},
		{Text: "there", Start: 1.2, End: 1.5},
		{Text: "hi", Start: 4.0, End: 4.3},
		{Text: "thanks", Start: 5.8, End: 6.2},
	}
}

func testSegments() []diarize.Segment {
	return []diarize.Segment{
		{Speaker: "SPEAKER_00", Start: 0.0, End: 3.5},
		{Speaker: "SPEAKER_01", Start: 3.5, End: 7.0},
	}
}

type runnerFixture struct {
	runner *Runner
	store  *store.Store
	chat   *scriptedChat
	asr    *asr.MockTranscriber
	dia    *mockDiarizer
	outDir string
}

func newFixture(t *testing.T) *runnerFixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	chat := workingChat()
	defaults := analytics.Defaults{Sentiment: "Neutral", Topic: "Unknown", Role: "Unknown"}
	analyzer := analytics.NewAnalyzer(chat, defaults, nil)

	mockASR := asr.NewMockTranscriber(&asr.Result{Words: testWords(), Text: "hello there hi thanks"})
	dia := &mockDiarizer{segments: testSegments()}

	outDir := t.TempDir()
	cfg := RunnerConfig{
		ScratchDir:     t.TempDir(),
		OutputDir:      outDir,
		NoiseThreshold: 0.005,
		Thresholds: audioproc.DialogueThresholds{
			MinDuration:   5 * time.Second,
			MinTurnCount:  3,
			MinSilenceGap: 300 * time.Millisecond,
		},
		MaxSpeakers: 2,
	}

	runner := NewRunner(cfg, st,
		mockASR, dia,
		EnhancerFunc(func() audioproc.Enhancer { return audioproc.PassthroughEnhancer{} }),
		nil, analyzer, defaults, nil)

	return &runnerFixture{runner: runner, store: st, chat: chat, asr: mockASR, dia: dia, outDir: outDir}
}

func TestProcessPersists(t *testing.T) {
	f := newFixture(t)
	audioPath := writeDialogueWAV(t, t.TempDir())

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomePersisted, res.Outcome)
	require.Greater(t, res.FileID, int64(0))
	require.Nil(t, res.Err)

	detail, err := f.store.GetFileDetail(context.Background(), res.FileID)
	require.NoError(t, err)
	require.Equal(t, "Billing", detail.TopicName)
	require.Len(t, detail.Utterances, 2)
	require.Equal(t, "Agent", detail.Utterances[0].Speaker)
	require.Equal(t, "Customer", detail.Utterances[1].Speaker)
	require.Equal(t, "Negative", detail.Utterances[1].Sentiment)
	require.Greater(t, detail.File.Features.RMSLoudness, 0.0)

	// transcript artifact written
	require.NotEmpty(t, res.TranscriptPath)
	data, err := os.ReadFile(res.TranscriptPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "Agent: hello there")

	// source kept (DeleteOriginal off)
	_, err = os.Stat(audioPath)
	require.NoError(t, err)
}

func TestProcessRejectsNonDialogue(t *testing.T) {
	f := newFixture(t)

	// three seconds of silence
	clip := &audio.Clip{Samples: make([]float64, 3*16000), SampleRate: 16000}
	audioPath := filepath.Join(t.TempDir(), "short.wav")
	require.NoError(t, audio.WriteWAV(audioPath, clip))

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Contains(t, res.Reason, "duration")

	n, err := f.store.CountFiles(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestProcessDiarizeFailureLeavesNoRow(t *testing.T) {
	f := newFixture(t)
	f.dia.err = fmt.Errorf("sidecar down")
	audioPath := writeDialogueWAV(t, t.TempDir())

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, DIARIZE_FAILED, res.Err.Code)
	require.Equal(t, StageDiarize, res.Err.Stage)

	n, err := f.store.CountFiles(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	// failed runs keep the source audio
	_, err = os.Stat(audioPath)
	require.NoError(t, err)
}

func TestProcessEmptyTranscriptRejects(t *testing.T) {
	f := newFixture(t)
	f.asr.Result = &asr.Result{Words: []asr.Word{}}
	audioPath := writeDialogueWAV(t, t.TempDir())

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Contains(t, res.Reason, "no words")
}

func TestProcessExtractorOutageStillPersists(t *testing.T) {
	f := newFixture(t)
	f.chat.err = fmt.Errorf("llm gateway down")
	audioPath := writeDialogueWAV(t, t.TempDir())

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomePersisted, res.Outcome)

	detail, err := f.store.GetFileDetail(context.Background(), res.FileID)
	require.NoError(t, err)
	require.Equal(t, "Unknown", detail.TopicName)
	require.Equal(t, "Unknown", detail.Utterances[0].Speaker)
	require.Equal(t, "Neutral", detail.Utterances[0].Sentiment)
}

// toneEnhancer replaces the audio with a pure tone, making it observable
// which waveform downstream stages consumed.
type toneEnhancer struct{ freq float64 }

func (e toneEnhancer) Enhance(ctx context.Context, inPath, outPath string) error {
	rate := 16000
	samples := make([]float64, 2*rate)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*e.freq*float64(i)/float64(rate))
	}
	return audio.WriteWAV(outPath, &audio.Clip{Samples: samples, SampleRate: rate})
}

func (toneEnhancer) HealthCheck(ctx context.Context) (bool, error) { return true, nil }
func (toneEnhancer) Name() string                                  { return "tone-enhancer" }

func TestProcessFeaturesUseEnhancedAudio(t *testing.T) {
	f := newFixture(t)
	f.runner.enhancers = EnhancerFunc(func() audioproc.Enhancer { return toneEnhancer{freq: 4000} })
	f.runner.cfg.NoiseThreshold = 0 // always enhance
	audioPath := writeDialogueWAV(t, t.TempDir())

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomePersisted, res.Outcome)

	detail, err := f.store.GetFileDetail(context.Background(), res.FileID)
	require.NoError(t, err)
	// the centroid tracks the enhanced 4 kHz tone, not the 440 Hz source
	require.InDelta(t, 4000, detail.File.Features.SpectralCentroid, 200)
}

func TestProcessCancelledContext(t *testing.T) {
	f := newFixture(t)
	audioPath := writeDialogueWAV(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.runner.Process(ctx, audioPath)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, CANCELLED, res.Err.Code)
}

func TestProcessDecodeFailure(t *testing.T) {
	f := newFixture(t)

	res := f.runner.Process(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, DECODE_FAILED, res.Err.Code)
}

func TestProcessDeleteOriginal(t *testing.T) {
	f := newFixture(t)
	f.runner.cfg.DeleteOriginal = true
	audioPath := writeDialogueWAV(t, t.TempDir())

	res := f.runner.Process(context.Background(), audioPath)
	require.Equal(t, OutcomePersisted, res.Outcome)

	_, err := os.Stat(audioPath)
	require.True(t, os.IsNotExist(err))
}
