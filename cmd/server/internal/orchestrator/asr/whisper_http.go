package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultTranscribeTimeout = 10 * time.Minute

// WhisperHTTP implements Transcriber against a whisper HTTP service that
// returns word-level timestamps (faster-whisper/whisperX style sidecar).
type WhisperHTTP struct {
	apiURL     string
	model      string
	httpClient *http.Client
}

// NewWhisperHTTP creates a transcriber for the service at apiURL. The HTTP
// client timeout is generous because transcription time tracks audio length.
func NewWhisperHTTP(apiURL, model string) *WhisperHTTP {
	return &WhisperHTTP{
		apiURL: strings.TrimRight(apiURL, "/"),
		model:  model,
		httpClient: &http.Client{
			Timeout: defaultTranscribeTimeout,
		},
	}
}

// whisperResponse is the wire format of the transcription endpoint.
type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word        string   `json:"word"`
		Start       float64  `json:"start"`
		End         float64  `json:"end"`
		Probability *float64 `json:"probability"`
	} `json:"words"`
}

// Transcribe posts the audio as multipart/form-data and parses the aligned
// word list from the JSON response.
func (w *WhisperHTTP) Transcribe(ctx context.Context, wavPath string, options *Options) (*Result, error) {
	file, err := os.Open(wavPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(wavPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	model := w.model
	if options != nil && options.Model != "" {
		model = options.Model
	}
	fields := map[string]string{
		"model":           model,
		"word_timestamps": "true",
		"response_format": "json",
	}
	if options != nil && options.Language != "" {
		fields["language"] = options.Language
	}
	if options != nil && options.Device != "" {
		fields["device"] = options.Device
	}
	if options != nil && options.ComputePrecision != "" {
		fields["compute_type"] = options.ComputePrecision
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	if options != nil && options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL+"/v1/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("whisper returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}

	result := &Result{
		Text:     parsed.Text,
		Language: parsed.Language,
		Duration: parsed.Duration,
		Words:    make([]Word, 0, len(parsed.Words)),
	}
	for _, pw := range parsed.Words {
		word := Word{
			Text:       strings.TrimSpace(pw.Word),
			Start:      pw.Start,
			End:        pw.End,
			Confidence: -1,
		}
		if pw.Probability != nil {
			word.Confidence = *pw.Probability
		}
		if word.Text == "" {
			continue
		}
		result.Words = append(result.Words, word)
	}
	return result, nil
}

// HealthCheck probes the service health endpoint.
func (w *WhisperHTTP) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.apiURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("create health request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("whisper health check failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Name identifies this implementation.
func (w *WhisperHTTP) Name() string {
	return "whisper-http"
}
