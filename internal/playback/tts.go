package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Speech is a synthesized line.
type Speech struct {
	URL      string
	Duration time.Duration // zero when the service does not report it
}

// TTS calls the speech synthesis endpoint.
type TTS struct {
	endpoint   string
	httpClient *http.Client
}

// NewTTS creates a synthesis client.
// Returns nil if endpoint is empty (subtitles only).
func NewTTS(endpoint string, timeout time.Duration) *TTS {
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &TTS{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
}

// Enabled returns true if the client has an endpoint.
func (t *TTS) Enabled() bool {
	return t != nil && t.endpoint != ""
}

type ttsRequest struct {
	Text      string `json:"text"`
	VoiceHint string `json:"voiceHint"`
}

type ttsResponse struct {
	URL        string `json:"url"`
	DurationMS int64  `json:"duration_ms"`
}

// Synthesize requests audio for text.
func (t *TTS) Synthesize(ctx context.Context, text, voiceHint string) (Speech, error) {
	if !t.Enabled() {
		return Speech{}, fmt.Errorf("tts not configured")
	}

	body, err := json.Marshal(ttsRequest{Text: text, VoiceHint: voiceHint})
	if err != nil {
		return Speech{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Speech{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Speech{}, fmt.Errorf("tts call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Speech{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Speech{}, fmt.Errorf("tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out ttsResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Speech{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.URL == "" {
		return Speech{}, fmt.Errorf("tts response has no url")
	}
	return Speech{URL: out.URL, Duration: time.Duration(out.DurationMS) * time.Millisecond}, nil
}
