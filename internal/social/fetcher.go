// Package social scrapes the public profile pages the enrichment jobs read:
// Telegram channel previews and bios, Instagram mirrors, and YouTube uploads.
package social

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTelegramURL  = "https://t.me"
	DefaultInstagramURL = "https://www.picuki.com"
	DefaultYouTubeURL   = "https://www.googleapis.com/youtube/v3"
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	maxPageBytes = 4 << 20
)

// Source names where a post came from.
type Source string

const (
	SourceTelegram  Source = "telegram"
	SourceInstagram Source = "instagram"
	SourceYouTube   Source = "youtube"
)

// Post is one piece of public content.
type Post struct {
	Source Source
	Text   string
	URL    string
}

type Config struct {
	TelegramURL   string
	InstagramURL  string
	YouTubeURL    string
	YouTubeAPIKey string
	UserAgent     string
	Timeout       time.Duration
	CacheSize     int
	CacheTTL      time.Duration
}

// Fetcher reads public pages. Successful page bodies are cached per URL.
type Fetcher struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client
	cache  *expirable.LRU[string, string]
}

func NewFetcher(log *slog.Logger, cfg Config) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TelegramURL == "" {
		cfg.TelegramURL = DefaultTelegramURL
	}
	if cfg.InstagramURL == "" {
		cfg.InstagramURL = DefaultInstagramURL
	}
	if cfg.YouTubeURL == "" {
		cfg.YouTubeURL = DefaultYouTubeURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	cfg.TelegramURL = strings.TrimRight(cfg.TelegramURL, "/")
	cfg.InstagramURL = strings.TrimRight(cfg.InstagramURL, "/")
	cfg.YouTubeURL = strings.TrimRight(cfg.YouTubeURL, "/")
	return &Fetcher{
		cfg:    cfg,
		logger: log.With(slog.String("client", "social")),
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// StatusError is a non-200 page response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (f *Fetcher) get(ctx context.Context, url string, header map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// document loads url as HTML, serving repeats from the cache.
func (f *Fetcher) document(ctx context.Context, url string) (*goquery.Document, error) {
	body, ok := f.cache.Get(url)
	if !ok {
		raw, err := f.get(ctx, url, map[string]string{"Accept-Language": "ru-RU,ru;q=0.9,en;q=0.8"})
		if err != nil {
			return nil, err
		}
		body = string(raw)
		f.cache.Add(url, body)
	} else {
		f.logger.Debug("page cache hit", slog.String("url", url))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}
