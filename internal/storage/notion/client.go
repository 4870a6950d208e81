// Package notion implements contacts.Store over the Notion REST API.
package notion

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

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"
	maxPageSize    = 100
)

// Config configures the client. TitleField and CircleField are the
// database property names of the title column and the circle select.
type Config struct {
	Token      string
	DatabaseID string
	BaseURL    string
	Version    string
	PageSize   int
	Timeout    time.Duration
	MaxTries   uint
	// RetryInterval is the first backoff delay.
	RetryInterval time.Duration
	TitleField    string
	CircleField   string
}

// APIError is a non-2xx Notion response.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps missing pages onto contacts.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == contacts.ErrNotFound && (e.Status == http.StatusNotFound || e.Code == "object_not_found")
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Client struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client
}

func NewClient(log *slog.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("notion client: token is required")
	}
	if strings.TrimSpace(cfg.DatabaseID) == "" {
		return nil, fmt.Errorf("notion client: database id is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 4
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &Client{
		cfg:    cfg,
		logger: log.With(slog.String("client", "notion")),
		http:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// call sends one JSON request, retrying rate limits and server errors.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval
	policy.MaxInterval = 10 * time.Second
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxTries-1)), ctx)

	return backoff.Retry(func() error {
		err := c.do(ctx, method, path, body, out)
		var apiErr *APIError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &apiErr) && !apiErr.retryable():
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		c.logger.Warn("notion request retry", slog.String("method", method), slog.String("path", path), slog.Any("error", err))
		return err
	}, retry)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", c.cfg.Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
