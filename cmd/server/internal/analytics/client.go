// Package analytics derives call-level annotations from the assembled
// transcript: speaker roles, per-utterance sentiment and profanity, a
// summary, conflict presence and the call topic. Every extractor degrades to
// a configured default so a model outage never fails a run.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ChatClient produces a completion for a single prompt. The production
// implementation talks to an OpenAI-compatible chat endpoint; tests swap in
// a canned client.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HTTPChatClient implements ChatClient against an OpenAI-compatible
// /chat/completions endpoint.
type HTTPChatClient struct {
	url        string
	apiKey     string
	model      string
	attempts   uint64
	httpClient *http.Client
}

// NewHTTPChatClient creates a client for the gateway at url. attempts is the
// number of retries on transient failures (0 disables retrying).
func NewHTTPChatClient(url, apiKey, model string, timeout time.Duration, attempts int) *HTTPChatClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if attempts < 0 {
		attempts = 0
	}
	return &HTTPChatClient{
		url:      url,
		apiKey:   apiKey,
		model:    model,
		attempts: uint64(attempts),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts the prompt and returns the first choice's content. Network
// errors and 5xx responses are retried with exponential backoff; 4xx
// responses fail immediately.
func (c *HTTPChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("chat request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("chat gateway HTTP %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("chat gateway HTTP %d: %s", resp.StatusCode, string(body)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat response has no choices"))
		}
		content = parsed.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.attempts), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return content, nil
}

// extractJSON pulls the first JSON value (object or array) out of a model
// reply that may be wrapped in prose or code fences.
func extractJSON(content string) (string, error) {
	objStart := strings.Index(content, "{")
	arrStart := strings.Index(content, "[")

	start, closer := objStart, "}"
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON found in model reply")
	}
	end := strings.LastIndex(content, closer)
	if end <= start {
		return "", fmt.Errorf("unterminated JSON in model reply")
	}
	return content[start : end+1], nil
}
