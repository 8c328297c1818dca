// Package runner orchestrates crawl cycles: it drains the durable queue
// through a bounded worker pool and writes every outcome back to the store.
package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
	"github.com/snikitin/bookcrawler/internal/metrics"
	"github.com/snikitin/bookcrawler/internal/normalize"
)

// logEvery controls progress log cadence in processed pages.
const logEvery = 50

// Config tunes one crawl run.
type Config struct {
	Workers          int
	Limit            int   // max pages processed this run, 0 means no cap
	DiscoverLimit    int64 // max URLs enqueued from discovery, 0 means no cap
	WithReviews      bool
	EnqueueBatchSize int
}

// Runner drives the claim-process-write cycle.
type Runner struct {
	store     crawl.Store
	fetcher   crawl.Fetcher
	extractor crawl.Extractor
	pacer     crawl.Pacer
	clock     crawl.Clock
	ids       crawl.IDGenerator
	logger    *zap.Logger
	cfg       Config

	processed atomic.Int64
}

// New constructs a Runner.
func New(
	store crawl.Store,
	fetcher crawl.Fetcher,
	extractor crawl.Extractor,
	pacer crawl.Pacer,
	clock crawl.Clock,
	ids crawl.IDGenerator,
	logger *zap.Logger,
	cfg Config,
) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.EnqueueBatchSize <= 0 {
		cfg.EnqueueBatchSize = 5000
	}
	return &Runner{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		pacer:     pacer,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		cfg:       cfg,
	}
}

// EnqueueStream drains a discovery stream into the queue in batches,
// stopping at the discover limit. Returns the number of URLs actually
// added (already-known URLs do not count).
func (r *Runner) EnqueueStream(ctx context.Context, urls <-chan string) (int64, error) {
	var added, seen int64
	batch := make([]string, 0, r.cfg.EnqueueBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.store.Enqueue(ctx, batch)
		if err != nil {
			return fmt.Errorf("enqueue batch: %w", err)
		}
		added += n
		metrics.ObserveEnqueued(n)
		batch = batch[:0]
		return nil
	}

	for u := range urls {
		batch = append(batch, u)
		seen++
		if len(batch) >= r.cfg.EnqueueBatchSize {
			if err := flush(); err != nil {
				return added, err
			}
		}
		if r.cfg.DiscoverLimit > 0 && seen >= r.cfg.DiscoverLimit {
			break
		}
	}
	if err := flush(); err != nil {
		return added, err
	}
	r.logger.Info("discovery finished", zap.Int64("seen", seen), zap.Int64("enqueued", added))
	return added, nil
}

// Run executes one crawl cycle: recover interrupted work, then claim and
// process batches until the queue is drained or the page limit is hit.
// Page-level failures become error rows; store failures abort the run.
func (r *Runner) Run(ctx context.Context) (int64, error) {
	logger := r.logger
	if runID, err := r.ids.NewID(); err == nil {
		logger = logger.With(zap.String("run_id", runID))
	}

	recovered, err := r.store.RecoverInterrupted(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted urls: %w", err)
	}
	if recovered > 0 {
		logger.Info("requeued interrupted urls", zap.Int64("count", recovered))
	}

	r.processed.Store(0)
	for {
		batchLimit := r.cfg.Workers * 3
		if r.cfg.Limit > 0 {
			remaining := r.cfg.Limit - int(r.processed.Load())
			if remaining <= 0 {
				break
			}
			if remaining < batchLimit {
				batchLimit = remaining
			}
		}

		urls, err := r.store.ClaimBatch(ctx, batchLimit)
		if err != nil {
			return r.processed.Load(), fmt.Errorf("claim batch: %w", err)
		}
		if len(urls) == 0 {
			break
		}

		if err := r.processBatch(ctx, logger, urls); err != nil {
			return r.processed.Load(), err
		}
		r.updateQueueGauge(ctx)
	}

	total := r.processed.Load()
	logger.Info("crawl cycle finished", zap.Int64("processed", total))
	return total, nil
}

// processBatch fans one claimed batch out over the worker pool.
func (r *Runner) processBatch(ctx context.Context, logger *zap.Logger, urls []string) error {
	jobs := make(chan string, len(urls))
	for _, u := range urls {
		jobs <- u
	}
	close(jobs)
	errCh := make(chan error, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				if err := r.processOne(ctx, logger, u); err != nil {
					errCh <- err
					return
				}
				if n := r.processed.Add(1); n%logEvery == 0 {
					logger.Info("progress", zap.Int64("processed", n))
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return fmt.Errorf("store write failed, aborting run: %w", err)
	}
	return nil
}

// processOne handles a single claimed URL end to end. The returned error is
// non-nil only for store or context failures; page-level problems are
// persisted and swallowed. A panic in extraction is converted into a failed
// row so one hostile page cannot take the pool down.
func (r *Runner) processOne(ctx context.Context, logger *zap.Logger, url string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("worker panic", zap.String("url", url), zap.Any("panic", p))
			err = r.persistFailure(ctx, url, fmt.Sprintf("panic: %v", p))
		}
	}()

	if err := r.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pacing interrupted: %w", err)
	}

	html, err := r.fetcher.Text(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("fetch interrupted: %w", ctx.Err())
		}
		logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		metrics.ObservePage("fetch_error")
		return r.persistFailure(ctx, url, err.Error())
	}

	res := r.extractor.Extract(ctx, url, html)
	switch res.Kind {
	case crawl.PageBook:
		return r.persistBook(ctx, logger, url, html, res)
	case crawl.PageBlocked:
		blocked := &crawl.BlockedError{URL: url, Reason: res.Reason}
		logger.Warn("page blocked", zap.String("url", url), zap.String("reason", res.Reason))
		metrics.ObservePage("blocked")
		return r.persistFailure(ctx, url, blocked.Error())
	case crawl.PageNotBook:
		notBook := &crawl.NotBookError{URL: url, Reason: res.Reason}
		logger.Info("not a book page", zap.String("url", url), zap.String("reason", res.Reason))
		metrics.ObservePage("not_book")
		return r.persistFailure(ctx, url, notBook.Error())
	default:
		return r.persistFailure(ctx, url, fmt.Sprintf("unknown page kind %d", res.Kind))
	}
}

func (r *Runner) persistBook(ctx context.Context, logger *zap.Logger, url, html string, res crawl.ExtractResult) error {
	rec := normalize.Book(res.Book)
	if err := r.store.UpsertBook(ctx, rec); err != nil {
		return fmt.Errorf("upsert book %s: %w", url, err)
	}

	if r.cfg.WithReviews {
		reviews, err := r.extractor.ExtractReviews(ctx, url, html)
		if err != nil {
			// The book itself was extracted fine, so a failing reviews
			// pass downgrades to a warning instead of failing the URL.
			logger.Warn("reviews pass failed", zap.String("url", url), zap.Error(err))
		} else if len(reviews) > 0 {
			for i := range reviews {
				reviews[i] = normalize.Review(reviews[i])
			}
			if _, err := r.store.UpsertReviews(ctx, reviews); err != nil {
				return fmt.Errorf("upsert reviews for %s: %w", url, err)
			}
		}
	}

	if err := r.store.MarkDone(ctx, url); err != nil {
		return fmt.Errorf("mark done %s: %w", url, err)
	}
	metrics.ObservePage("ok")
	return nil
}

// persistFailure writes the explicit error row and the failed queue
// transition, so a failing URL stays visible and queryable.
func (r *Runner) persistFailure(ctx context.Context, url, errText string) error {
	rec := crawl.BookRecord{
		URL:       url,
		ScrapedAt: r.clock.Now().UTC().Format(time.RFC3339),
		Status:    crawl.BookError,
		Error:     errText,
	}
	if err := r.store.UpsertBook(ctx, rec); err != nil {
		return fmt.Errorf("upsert error row %s: %w", url, err)
	}
	if err := r.store.MarkFailed(ctx, url, errText); err != nil {
		return fmt.Errorf("mark failed %s: %w", url, err)
	}
	return nil
}

func (r *Runner) updateQueueGauge(ctx context.Context) {
	sum, err := r.store.StatusSummary(ctx)
	if err != nil {
		return
	}
	metrics.SetQueuePending(sum.Queue[crawl.QueuePending])
}
