package asr

import "context"

// MockTranscriber is a canned-result Transcriber for tests and offline
// development. Unlike the preprocessing fallbacks, it never stands in for a
// failed production transcriber: a missing transcript is fatal to a run.
type MockTranscriber struct {
	// Result is returned from every Transcribe call when Err is nil.
	Result *Result

	// Err, when set, is returned from every Transcribe call.
	Err error

	// Healthy controls HealthCheck.
	Healthy bool
}

// NewMockTranscriber returns a healthy mock that yields result.
func NewMockTranscriber(result *Result) *MockTranscriber {
	return &MockTranscriber{Result: result, Healthy: true}
}

// Transcribe returns the canned result or error.
func (m *MockTranscriber) Transcribe(ctx context.Context, wavPath string, options *Options) (*Result, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &Result{Words: []Word{}, Language: "en"}, nil
}

// HealthCheck reports the configured health flag.
func (m *MockTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	return m.Healthy, nil
}

// Name identifies this implementation.
func (m *MockTranscriber) Name() string {
	return "mock"
}
