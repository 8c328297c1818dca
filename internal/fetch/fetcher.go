// Package fetch implements paced, retrying HTTP retrieval.
package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/snikitin/bookcrawler/internal/crawl"
	"github.com/snikitin/bookcrawler/internal/metrics"
)

// Config controls the HTTP client and its retry budget.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// Fetcher retrieves documents over HTTP. Every retry waits on the shared
// pacer first so retries never bypass global pacing; the first attempt is
// paced by the caller.
type Fetcher struct {
	client  *resty.Client
	pacer   crawl.Pacer
	retries int
	logger  *zap.Logger
}

// New constructs a Fetcher around a configured resty client.
func New(cfg Config, pacer crawl.Pacer, logger *zap.Logger) *Fetcher {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "ru,en-US;q=0.8,en;q=0.7").
		SetHeader("Connection", "keep-alive")

	return &Fetcher{
		client:  client,
		pacer:   pacer,
		retries: retries,
		logger:  logger,
	}
}

// Text fetches a URL and returns the response body as a string.
func (f *Fetcher) Text(ctx context.Context, url string, opts ...crawl.FetchOption) (string, error) {
	body, err := f.do(ctx, url, opts...)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Bytes fetches a URL and returns the raw response body, for binary
// payloads such as gzip-compressed sitemaps.
func (f *Fetcher) Bytes(ctx context.Context, url string, opts ...crawl.FetchOption) ([]byte, error) {
	return f.do(ctx, url, opts...)
}

// Close releases the underlying client resources.
func (f *Fetcher) Close() error {
	return f.client.Close()
}

func (f *Fetcher) do(ctx context.Context, url string, opts ...crawl.FetchOption) ([]byte, error) {
	o := crawl.FetchOptions{OKStatuses: []int{200}}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			metrics.ObserveFetchRetry()
			if err := f.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}

		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			lastErr = fmt.Errorf("get %s: %w", url, err)
			f.logger.Debug("fetch attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if !statusAllowed(resp.StatusCode(), o.OKStatuses) {
			lastErr = fmt.Errorf("http %d for %s", resp.StatusCode(), url)
			f.logger.Debug("fetch attempt rejected",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Int("status", resp.StatusCode()),
			)
			continue
		}
		return resp.Bytes(), nil
	}
	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", url, f.retries, lastErr)
}

func statusAllowed(code int, allowed []int) bool {
	for _, ok := range allowed {
		if code == ok {
			return true
		}
	}
	return false
}
