package diarize

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
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultDiarizeTimeout = 5 * time.Minute

// Pyannote implements Diarizer against a pyannote HTTP sidecar.
type Pyannote struct {
	baseURL    string
	httpClient *http.Client
}

// NewPyannote creates a diarizer for the sidecar at baseURL.
func NewPyannote(baseURL string) *Pyannote {
	return &Pyannote{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultDiarizeTimeout,
		},
	}
}

// Diarize uploads the audio and decodes the speaker segments. Segments are
// returned sorted by start time regardless of sidecar ordering.
func (p *Pyannote) Diarize(ctx context.Context, req Request) (*Response, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if req.NumSpeakers > 0 {
		if err := writer.WriteField("num_speakers", strconv.Itoa(req.NumSpeakers)); err != nil {
			return nil, fmt.Errorf("write num_speakers: %w", err)
		}
	}
	if req.MinSpeakers > 0 {
		if err := writer.WriteField("min_speakers", strconv.Itoa(req.MinSpeakers)); err != nil {
			return nil, fmt.Errorf("write min_speakers: %w", err)
		}
	}
	if req.MaxSpeakers > 0 {
		if err := writer.WriteField("max_speakers", strconv.Itoa(req.MaxSpeakers)); err != nil {
			return nil, fmt.Errorf("write max_speakers: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/diarize", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pyannote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pyannote returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pyannote response: %w", err)
	}

	sort.SliceStable(out.Segments, func(i, j int) bool {
		return out.Segments[i].Start < out.Segments[j].Start
	})
	return &out, nil
}

// HealthCheck probes the sidecar health endpoint.
func (p *Pyannote) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("create health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("pyannote health check failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Name identifies this implementation.
func (p *Pyannote) Name() string {
	return "pyannote"
}
