// Package speech is the text-to-speech client. The synthesis backend
// returns uncompressed mono 8 kHz 16-bit WAV, which the pacing engine
// streams directly.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/autovox/autovox/internal/media"
)

// maxClipBytes bounds a synthesized clip (about five minutes of 8 kHz
// 16-bit audio).
const maxClipBytes = 5 << 20

// synthesizeRequest is the payload sent to POST /v1/synthesize.
type synthesizeRequest struct {
	Text string `json:"text"`
}

// Client is an HTTP client for the speech synthesis service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a synthesis client. baseURL is the service endpoint,
// e.g. "http://localhost:5002".
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		logger:     logger.With("subsystem", "tts"),
	}
}

// Synthesize converts text to a playable WAV clip. The response is
// validated as linear PCM mono 8 kHz 16-bit before being returned.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("tts: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts: service returned status %d", resp.StatusCode)
	}

	clip, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("tts: reading response: %w", err)
	}
	if err := media.ValidatePCMWAV(clip); err != nil {
		return nil, fmt.Errorf("tts: unusable audio: %w", err)
	}

	c.logger.Debug("text synthesized",
		"chars", len(text),
		"bytes", len(clip),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return clip, nil
}
