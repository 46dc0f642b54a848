// Package caption asks an Ollama-compatible model for a one-line photo
// description. Captioning is strictly best-effort: callers treat every
// failure as "no description".
package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"taglens/internal/config"
)

const prompt = "Describe this photo in one short sentence for a photo library. " +
	"Mention the main subject and setting. Do not speculate about people's identities."

type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	limiter    *rate.Limiter
}

func NewClient(cfg config.CaptionConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = 2 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Describe sends the image to the model and returns its one-line answer.
// The limiter keeps a burst of uploads from piling onto the model; waiting
// respects ctx, so the caller's timeout still bounds the whole call.
func (c *Client) Describe(ctx context.Context, image []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("caption limiter: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	})
	if err != nil {
		return "", fmt.Errorf("marshal caption request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build caption request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("caption service returned %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode caption response: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}
