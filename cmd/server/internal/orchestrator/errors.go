package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies pipeline stage failures.
type ErrorCode string

const (
	// DECODE_FAILED audio could not be read or decoded
	DECODE_FAILED ErrorCode = "DECODE_FAILED"

	// PREPROCESS_FAILED preprocessing could not produce a working copy
	PREPROCESS_FAILED ErrorCode = "PREPROCESS_FAILED"

	// TRANSCRIBE_FAILED transcription service failed or returned no usable output
	TRANSCRIBE_FAILED ErrorCode = "TRANSCRIBE_FAILED"

	// DIARIZE_FAILED speaker diarization failed
	DIARIZE_FAILED ErrorCode = "DIARIZE_FAILED"

	// ASSEMBLE_FAILED transcript and segments could not be merged
	ASSEMBLE_FAILED ErrorCode = "ASSEMBLE_FAILED"

	// ANALYZE_FAILED text analytics aborted (cancellation, not extractor fallback)
	ANALYZE_FAILED ErrorCode = "ANALYZE_FAILED"

	// PERSIST_FAILED database commit failed
	PERSIST_FAILED ErrorCode = "PERSIST_FAILED"

	// CANCELLED the run context was cancelled between stages
	CANCELLED ErrorCode = "CANCELLED"
)

// RunError is a stage-attributed pipeline error.
type RunError struct {
	Code      ErrorCode `json:"code"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
}

// Unwrap supports error chain inspection.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// NewRunError creates a stage-attributed pipeline error.
func NewRunError(code ErrorCode, stage, message string, cause error) *RunError {
	return &RunError{
		Code:      code,
		Stage:     stage,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// CodeOf extracts the error code from an error chain, or empty.
func CodeOf(err error) ErrorCode {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// StageOf extracts the failing stage from an error chain, or empty.
func StageOf(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Stage
	}
	return ""
}
