// Package llm provides the client for the text generation endpoint used for
// live dialogue.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrRateLimited is returned when the per-minute call budget is spent.
var ErrRateLimited = errors.New("generation rate limit exceeded")

// Client calls the generation endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client

	// Rate limiting: max calls per minute.
	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

// NewClient creates a generation client.
// Returns nil if endpoint is empty (generation disabled).
func NewClient(endpoint string, timeout time.Duration, maxPerMin int) *Client {
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxPerMin <= 0 {
		maxPerMin = 20
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxPerMin: maxPerMin,
	}
}

// Enabled returns true if the client has an endpoint.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// request is the endpoint request body.
type request struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
}

// response is the endpoint response body.
type response struct {
	Narrative *string `json:"narrative"`
}

func (c *Client) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.After(c.resetAt) {
		c.callCount = 0
		c.resetAt = now.Add(time.Minute)
	}
	if c.callCount >= c.maxPerMin {
		return false
	}
	c.callCount++
	return true
}

// Generate sends one prompt and returns the narrative text. There is no retry.
// A non-2xx status, a body without a narrative string, or a blank narrative
// are all errors.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("generation client not configured")
	}
	if !c.allow() {
		return "", fmt.Errorf("%w (%d calls/min)", ErrRateLimited, c.maxPerMin)
	}

	body, err := json.Marshal(request{Prompt: prompt, Temperature: temperature})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("generation error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Narrative == nil || strings.TrimSpace(*out.Narrative) == "" {
		return "", fmt.Errorf("empty narrative")
	}

	slog.Debug("generation call",
		"prompt_chars", len(prompt),
		"reply_chars", len(*out.Narrative),
		"elapsed", time.Since(start),
	)

	return *out.Narrative, nil
}
