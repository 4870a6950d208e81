// Package textgen is the text-generation backend used by enrichment.
package textgen

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
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-flash-latest"
)

var (
	// ErrUnavailable means no backend is configured; callers fall back.
	ErrUnavailable = errors.New("text generation unavailable")
	// ErrEmpty means the backend answered without any candidate text.
	ErrEmpty = errors.New("text generation returned no text")
)

// Summarizer turns a prompt into text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
	MaxOutputTokens int
	Temperature     float64
}

// HTTPError is a non-2xx generateContent response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Body)
}

type GeminiClient struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client
}

var _ Summarizer = (*GeminiClient)(nil)

// NewGeminiClient builds the client. Without an API key every call
// returns ErrUnavailable.
func NewGeminiClient(log *slog.Logger, cfg Config) *GeminiClient {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 500
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	return &GeminiClient{
		cfg:    cfg,
		logger: log.With(slog.String("client", "gemini")),
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *GeminiClient) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Summarize runs one generateContent call. Rate limits and transport
// errors are retried with exponential backoff; other statuses fail at once.
func (c *GeminiClient) Summarize(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: c.cfg.MaxOutputTokens,
			Temperature:     c.cfg.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.1
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxTries-1)), ctx)

	var text string
	err = backoff.Retry(func() error {
		var callErr error
		text, callErr = c.generate(ctx, body)
		var httpErr *HTTPError
		switch {
		case callErr == nil:
			return nil
		case errors.As(callErr, &httpErr) && httpErr.Status != http.StatusTooManyRequests:
			return backoff.Permanent(callErr)
		case errors.Is(callErr, ErrEmpty), ctx.Err() != nil:
			return backoff.Permanent(callErr)
		}
		c.logger.Warn("gemini retry", slog.Any("error", callErr))
		return callErr
	}, retry)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmpty
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
