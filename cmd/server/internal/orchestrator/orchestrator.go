// Package orchestrator drives one audio recording through the full analysis
// pipeline: dialogue check, preprocessing, transcription, diarization,
// utterance assembly, text analytics with acoustic feature extraction, and
// the final database commit.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/callytics/callytics/cmd/server/internal/analytics"
	"github.com/callytics/callytics/cmd/server/internal/assembly"
	"github.com/callytics/callytics/cmd/server/internal/audio"
	"github.com/callytics/callytics/cmd/server/internal/metrics"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/asr"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/audioproc"
	"github.com/callytics/callytics/cmd/server/internal/orchestrator/diarize"
	"github.com/callytics/callytics/cmd/server/internal/store"
	"github.com/callytics/callytics/pkg/logger"
)

// Stage names used in logs and metrics.
const (
	StageDialogueCheck = "dialogue_check"
	StagePreprocess    = "preprocess"
	StageTranscribe    = "transcribe"
	StageDiarize       = "diarize"
	StageAssemble      = "assemble"
	StageAnalyze       = "analyze"
	StageFeatures      = "features"
	StagePersist       = "persist"
	StageCleanup       = "cleanup"
)

// Outcome is the terminal state of one run.
type Outcome string

const (
	// OutcomePersisted means the call was analyzed and committed.
	OutcomePersisted Outcome = "persisted"

	// OutcomeRejected means the recording did not qualify as a dialogue.
	// Nothing was written to the database.
	OutcomeRejected Outcome = "rejected"

	// OutcomeFailed means a fatal stage error aborted the run. Nothing was
	// written to the database.
	OutcomeFailed Outcome = "failed"
)

// RunResult reports how a run ended.
type RunResult struct {
	RunID   string
	Outcome Outcome

	// FileID is the persisted File row id (persisted only).
	FileID int64

	// Reason explains a rejection (rejected only).
	Reason string

	// Err is the fatal stage error (failed only).
	Err *RunError

	// TranscriptPath is the speaker-attributed transcript artifact, empty
	// when the run did not persist.
	TranscriptPath string
}

// EnhancerSource yields the currently active enhancer. The degradation
// controller implements it; tests use a fixed function.
type EnhancerSource interface {
	GetEnhancer() audioproc.Enhancer
}

// EnhancerFunc adapts a function to EnhancerSource.
type EnhancerFunc func() audioproc.Enhancer

// GetEnhancer calls the function.
func (f EnhancerFunc) GetEnhancer() audioproc.Enhancer { return f() }

// RunnerConfig holds the orchestration policies for a Runner.
type RunnerConfig struct {
	ScratchDir string
	OutputDir  string

	// DeleteOriginal removes the source audio after a persisted or rejected
	// run. Failed runs always keep the source for reprocessing.
	DeleteOriginal bool

	// NoiseThreshold skips enhancement when the measured noise floor is
	// already below it.
	NoiseThreshold float64

	Thresholds audioproc.DialogueThresholds

	ASROptions asr.Options

	MinSpeakers int
	MaxSpeakers int
}

// Runner executes pipeline runs. Safe for concurrent use; each Process call
// works in its own scratch namespace.
type Runner struct {
	cfg         RunnerConfig
	store       *store.Store
	transcriber asr.Transcriber
	diarizer    diarize.Diarizer
	enhancers   EnhancerSource
	separator   audioproc.Separator // optional
	analyzer    *analytics.Analyzer
	defaults    analytics.Defaults
	log         *slog.Logger
}

// NewRunner wires a Runner. separator may be nil to skip vocal separation.
func NewRunner(
	cfg RunnerConfig,
	st *store.Store,
	transcriber asr.Transcriber,
	diarizer diarize.Diarizer,
	enhancers EnhancerSource,
	separator audioproc.Separator,
	analyzer *analytics.Analyzer,
	defaults analytics.Defaults,
	log *slog.Logger,
) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:         cfg,
		store:       st,
		transcriber: transcriber,
		diarizer:    diarizer,
		enhancers:   enhancers,
		separator:   separator,
		analyzer:    analyzer,
		defaults:    defaults,
		log:         log,
	}
}

// Process runs the full pipeline for one recording. It never returns a Go
// error: every run ends in exactly one of the three outcomes, and the
// database sees either one complete call record or nothing.
func (r *Runner) Process(ctx context.Context, audioPath string) RunResult {
	runID := uuid.NewString()
	log := r.log.With("run_id", runID, "audio", audioPath)
	start := time.Now()

	res := r.process(ctx, runID, log, audioPath)
	res.RunID = runID

	metrics.RecordRun(string(res.Outcome))
	switch res.Outcome {
	case OutcomePersisted:
		log.Info("run persisted",
			"file_id", res.FileID,
			"transcript", res.TranscriptPath,
			"duration_ms", time.Since(start).Milliseconds())
	case OutcomeRejected:
		log.Info("run rejected",
			"reason", res.Reason,
			"duration_ms", time.Since(start).Milliseconds())
	case OutcomeFailed:
		log.Error("run failed",
			"stage", res.Err.Stage,
			"error", res.Err,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return res
}

func (r *Runner) process(ctx context.Context, runID string, log *slog.Logger, audioPath string) RunResult {
	scratch := filepath.Join(r.cfg.ScratchDir, "run_"+runID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return failed(NewRunError(PREPROCESS_FAILED, StagePreprocess, "create scratch dir", err))
	}
	defer r.cleanup(log, runID, scratch)

	// dialogue check
	var clip *audio.Clip
	var report audioproc.DialogueReport
	err := r.stage(ctx, log, runID, StageDialogueCheck, func() error {
		var err error
		clip, err = audio.Load(audioPath)
		if err != nil {
			return NewRunError(DECODE_FAILED, StageDialogueCheck, "decode audio", err)
		}
		report = audioproc.CheckDialogue(clip, r.cfg.Thresholds)
		return nil
	})
	if err != nil {
		return failed(asRunError(err))
	}
	if !report.HasDialogue {
		r.discardOriginal(log, audioPath)
		return RunResult{Outcome: OutcomeRejected, Reason: report.Reason}
	}

	// preprocess: normalized working copy, then best-effort enhancement and
	// vocal separation
	workPath := filepath.Join(scratch, "work.wav")
	err = r.stage(ctx, log, runID, StagePreprocess, func() error {
		if err := audio.WriteWAV(workPath, clip); err != nil {
			return NewRunError(PREPROCESS_FAILED, StagePreprocess, "write working copy", err)
		}
		workPath = r.enhance(ctx, log, scratch, workPath, report.NoiseLevel)
		workPath = r.separate(ctx, log, scratch, workPath)
		return nil
	})
	if err != nil {
		return failed(asRunError(err))
	}

	// transcribe
	var tr *asr.Result
	err = r.stage(ctx, log, runID, StageTranscribe, func() error {
		var err error
		tr, err = r.transcriber.Transcribe(ctx, workPath, &r.cfg.ASROptions)
		if err != nil {
			return NewRunError(TRANSCRIBE_FAILED, StageTranscribe, "transcribe audio", err)
		}
		return nil
	})
	if err != nil {
		return failed(asRunError(err))
	}
	if len(tr.Words) == 0 {
		r.discardOriginal(log, audioPath)
		return RunResult{Outcome: OutcomeRejected, Reason: "transcription produced no words"}
	}

	// diarize
	var dz *diarize.Response
	err = r.stage(ctx, log, runID, StageDiarize, func() error {
		var err error
		dz, err = r.diarizer.Diarize(ctx, diarize.Request{
			AudioPath:   workPath,
			MinSpeakers: r.cfg.MinSpeakers,
			MaxSpeakers: r.cfg.MaxSpeakers,
		})
		if err != nil {
			return NewRunError(DIARIZE_FAILED, StageDiarize, "diarize audio", err)
		}
		return nil
	})
	if err != nil {
		return failed(asRunError(err))
	}

	// assemble
	var utterances []store.Utterance
	err = r.stage(ctx, log, runID, StageAssemble, func() error {
		var err error
		utterances, err = assembly.Assemble(0, tr.Words, dz.Segments)
		if err != nil {
			return NewRunError(ASSEMBLE_FAILED, StageAssemble, "assemble utterances", err)
		}
		return nil
	})
	if err != nil {
		return failed(asRunError(err))
	}

	// text analytics and acoustic features run in parallel; only the text
	// path can fail (on cancellation), features always produce values
	var annotations *analytics.Result
	var features store.AcousticFeatures
	err = r.stage(ctx, log, runID, StageAnalyze, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a, err := r.analyzer.Analyze(gctx, utterances)
			if err != nil {
				return NewRunError(ANALYZE_FAILED, StageAnalyze, "analyze transcript", err)
			}
			annotations = a
			return nil
		})
		g.Go(func() error {
			featStart := time.Now()
			// features describe the audio the models heard, so prefer the
			// enhanced working copy over the raw source
			featClip := clip
			if wc, err := audio.Load(workPath); err == nil {
				featClip = wc
			} else {
				log.Warn("decode working copy for features failed, using source audio", "error", err)
			}
			features = audioproc.ExtractFeatures(featClip)
			metrics.RecordStageDuration(StageFeatures, time.Since(featStart).Seconds())
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return failed(asRunError(err))
	}

	// the transcript artifact goes out before the commit; it is best-effort
	// either way
	transcriptPath := r.writeTranscript(log, audioPath, annotations.Apply(utterances, r.defaults))

	// persist
	var fileID int64
	err = r.stage(ctx, log, runID, StagePersist, func() error {
		rec := r.buildRecord(audioPath, clip, report, features, annotations, utterances)
		var err error
		fileID, err = r.store.Commit(ctx, rec)
		if err != nil {
			return NewRunError(PERSIST_FAILED, StagePersist, "commit call record", err)
		}
		return nil
	})
	if err != nil {
		return failed(asRunError(err))
	}

	r.discardOriginal(log, audioPath)

	return RunResult{
		Outcome:        OutcomePersisted,
		FileID:         fileID,
		TranscriptPath: transcriptPath,
	}
}

// stage times one pipeline stage, records its metrics and emits the stage
// log line. Cancellation is checked at the stage boundary so a cancelled run
// stops before starting new work.
func (r *Runner) stage(ctx context.Context, log *slog.Logger, runID, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return NewRunError(CANCELLED, name, "run cancelled", err)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	metrics.RecordStageDuration(name, elapsed.Seconds())
	code := ""
	if err != nil {
		code = string(CodeOf(err))
		metrics.RecordStageError(name, code)
	}
	logger.LogStage(log, runID, name, "complete", elapsed.Milliseconds(), code)
	return err
}

// enhance denoises the working copy when the noise floor warrants it. Errors
// never fail the run: the unenhanced path is returned instead.
func (r *Runner) enhance(ctx context.Context, log *slog.Logger, scratch, workPath string, noiseLevel float64) string {
	if r.enhancers == nil {
		return workPath
	}
	if noiseLevel < r.cfg.NoiseThreshold {
		log.Debug("skipping enhancement, noise below threshold",
			"noise_level", noiseLevel,
			"threshold", r.cfg.NoiseThreshold)
		return workPath
	}
	enh := r.enhancers.GetEnhancer()
	outPath := filepath.Join(scratch, "enhanced.wav")
	if err := enh.Enhance(ctx, workPath, outPath); err != nil {
		log.Warn("enhancement failed, using original audio",
			"enhancer", enh.Name(),
			"error", err)
		return workPath
	}
	return outPath
}

// separate isolates vocals when a separator is configured. Best-effort like
// enhance.
func (r *Runner) separate(ctx context.Context, log *slog.Logger, scratch, workPath string) string {
	if r.separator == nil {
		return workPath
	}
	outPath := filepath.Join(scratch, "vocals.wav")
	if err := r.separator.Separate(ctx, workPath, outPath); err != nil {
		log.Warn("vocal separation failed, using original audio",
			"separator", r.separator.Name(),
			"error", err)
		return workPath
	}
	return outPath
}

func (r *Runner) buildRecord(
	audioPath string,
	clip *audio.Clip,
	report audioproc.DialogueReport,
	features store.AcousticFeatures,
	annotations *analytics.Result,
	utterances []store.Utterance,
) store.CallRecord {
	ext := strings.TrimPrefix(filepath.Ext(audioPath), ".")
	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))

	return store.CallRecord{
		File: store.File{
			Name:      name,
			Extension: ext,
			Path:      audioPath,
			Rate:      clip.SampleRate,
			Channels:  1,
			Duration:  clip.Seconds(),
			Features:  features,
			Summary:   annotations.Summary,
			Conflict:  annotations.Conflict,
			Silence:   report.SilenceSeconds,
		},
		Utterances: annotations.Apply(utterances, r.defaults),
		TopicName:  annotations.Topic,
	}
}

// writeTranscript renders the speaker-attributed transcript artifact.
// Best-effort: a write failure is logged but does not undo the persisted run.
func (r *Runner) writeTranscript(log *slog.Logger, audioPath string, utterances []store.Utterance) string {
	if r.cfg.OutputDir == "" {
		return ""
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		log.Warn("create output dir failed", "error", err)
		return ""
	}

	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	outPath := filepath.Join(r.cfg.OutputDir, name+".txt")

	var b strings.Builder
	for _, u := range utterances {
		fmt.Fprintf(&b, "[%s - %s] %s: %s\n",
			formatTimestamp(u.StartTime), formatTimestamp(u.EndTime), u.Speaker, u.Content)
	}
	if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
		log.Warn("write transcript artifact failed", "path", outPath, "error", err)
		return ""
	}
	return outPath
}

// cleanup removes the run's scratch namespace.
func (r *Runner) cleanup(log *slog.Logger, runID, scratch string) {
	start := time.Now()
	err := os.RemoveAll(scratch)
	metrics.RecordStageDuration(StageCleanup, time.Since(start).Seconds())
	if err != nil {
		log.Warn("scratch cleanup failed", "path", scratch, "error", err)
	}
	logger.LogStage(log, runID, StageCleanup, "complete", time.Since(start).Milliseconds(), "")
}

// discardOriginal removes the source audio when configured to. Applies to
// persisted and rejected runs; failed runs keep the source.
func (r *Runner) discardOriginal(log *slog.Logger, audioPath string) {
	if !r.cfg.DeleteOriginal {
		return
	}
	if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
		log.Warn("delete original failed", "path", audioPath, "error", err)
	}
}

// formatTimestamp renders seconds as mm:ss.mmm.
func formatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	mins := int(d.Minutes())
	secs := d - time.Duration(mins)*time.Minute
	return fmt.Sprintf("%02d:%06.3f", mins, secs.Seconds())
}

func failed(err *RunError) RunResult {
	return RunResult{Outcome: OutcomeFailed, Err: err}
}

func asRunError(err error) *RunError {
	if re, ok := err.(*RunError); ok {
		return re
	}
	return NewRunError(CANCELLED, "", err.Error(), err)
}
