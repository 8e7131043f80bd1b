package audioproc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultModelTimeout = 10 * time.Minute

// Enhancer removes noise from a recording. Enhancement is best-effort: the
// run controller falls back to the original audio when it fails, and the
// degradation controller may swap in the Passthrough implementation when the
// service is unhealthy. Implementations must be idempotent — enhancing
// already-clean audio must not degrade it.
type Enhancer interface {
	// Enhance denoises the audio at inPath and writes the result to
	// outPath.
	Enhance(ctx context.Context, inPath, outPath string) error

	// HealthCheck reports whether the backing service can take requests.
	HealthCheck(ctx context.Context) (bool, error)

	// Name identifies the implementation in logs and health reports.
	Name() string
}

// Separator isolates the vocal track from a recording. Same best-effort
// policy as Enhancer.
type Separator interface {
	Separate(ctx context.Context, inPath, outPath string) error
	HealthCheck(ctx context.Context) (bool, error)
	Name() string
}

// modelClient posts audio to a single-endpoint processing service and writes
// the processed audio it returns. Both the enhancer and separator sidecars
// speak this shape.
type modelClient struct {
	baseURL    string
	endpoint   string
	name       string
	httpClient *http.Client
}

func newModelClient(baseURL, endpoint, name string) *modelClient {
	return &modelClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		endpoint: endpoint,
		name:     name,
		httpClient: &http.Client{
			Timeout: defaultModelTimeout,
		},
	}
}

func (c *modelClient) process(ctx context.Context, inPath, outPath string) error {
	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filepath.Base(inPath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned HTTP %d: %s", c.name, resp.StatusCode, string(raw))
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write processed audio: %w", err)
	}
	return nil
}

func (c *modelClient) healthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s health check failed: %w", c.name, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// HTTPEnhancer implements Enhancer against a denoising HTTP service.
type HTTPEnhancer struct {
	client *modelClient
}

// NewHTTPEnhancer creates an enhancer for the service at baseURL.
func NewHTTPEnhancer(baseURL string) *HTTPEnhancer {
	return &HTTPEnhancer{client: newModelClient(baseURL, "/enhance", "enhancer")}
}

// Enhance posts the audio and stores the denoised result.
func (e *HTTPEnhancer) Enhance(ctx context.Context, inPath, outPath string) error {
	return e.client.process(ctx, inPath, outPath)
}

// HealthCheck probes the service health endpoint.
func (e *HTTPEnhancer) HealthCheck(ctx context.Context) (bool, error) {
	return e.client.healthCheck(ctx)
}

// Name identifies this implementation.
func (e *HTTPEnhancer) Name() string { return "enhancer-http" }

// PassthroughEnhancer copies the input unchanged. It is the fallback the
// degradation controller switches to when the enhancer service is down, and
// the implementation behind the noise-threshold skip.
type PassthroughEnhancer struct{}

// Enhance copies inPath to outPath without modification.
func (PassthroughEnhancer) Enhance(ctx context.Context, inPath, outPath string) error {
	return copyFile(inPath, outPath)
}

// HealthCheck always reports false: passthrough means enhancement is
// effectively unavailable.
func (PassthroughEnhancer) HealthCheck(ctx context.Context) (bool, error) {
	return false, nil
}

// Name identifies this implementation.
func (PassthroughEnhancer) Name() string { return "enhancer-passthrough" }

// HTTPSeparator implements Separator against a vocal-separation HTTP service.
type HTTPSeparator struct {
	client *modelClient
}

// NewHTTPSeparator creates a separator for the service at baseURL.
func NewHTTPSeparator(baseURL string) *HTTPSeparator {
	return &HTTPSeparator{client: newModelClient(baseURL, "/separate", "separator")}
}

// Separate posts the audio and stores the isolated vocal track.
func (s *HTTPSeparator) Separate(ctx context.Context, inPath, outPath string) error {
	return s.client.process(ctx, inPath, outPath)
}

// HealthCheck probes the service health endpoint.
func (s *HTTPSeparator) HealthCheck(ctx context.Context) (bool, error) {
	return s.client.healthCheck(ctx)
}

// Name identifies this implementation.
func (s *HTTPSeparator) Name() string { return "separator-http" }

// copyFile copies a file from src to dst, preserving contents.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}

	return out.Sync()
}
