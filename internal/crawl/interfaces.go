package crawl

import (
	"context"
	"time"
)

// Store is the single source of truth for crawl progress and results.
// Store I/O failures are fatal to a run: losing queue or result writes would
// break resumability.
type Store interface {
	Enqueue(ctx context.Context, urls []string) (int64, error)
	ClaimBatch(ctx context.Context, n int) ([]string, error)
	MarkDone(ctx context.Context, url string) error
	MarkFailed(ctx context.Context, url, errText string) error
	UpsertBook(ctx context.Context, rec BookRecord) error
	UpsertReviews(ctx context.Context, recs []ReviewRecord) (int64, error)
	RecoverInterrupted(ctx context.Context) (int64, error)
	ResetAll(ctx context.Context) (int64, error)
	StatusSummary(ctx context.Context) (Summary, error)
}

// FetchOptions tune a single fetch call.
type FetchOptions struct {
	OKStatuses []int
}

// FetchOption mutates FetchOptions.
type FetchOption func(*FetchOptions)

// WithOKStatuses overrides the set of status codes treated as success.
func WithOKStatuses(codes ...int) FetchOption {
	return func(o *FetchOptions) {
		o.OKStatuses = codes
	}
}

// Fetcher retrieves remote documents with retry and shared pacing.
type Fetcher interface {
	Text(ctx context.Context, url string, opts ...FetchOption) (string, error)
	Bytes(ctx context.Context, url string, opts ...FetchOption) ([]byte, error)
}

// Pacer spaces outbound requests globally across all workers.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Extractor turns fetched HTML into a classified result.
type Extractor interface {
	Extract(ctx context.Context, pageURL, html string) ExtractResult
	ExtractReviews(ctx context.Context, pageURL, html string) ([]ReviewRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
