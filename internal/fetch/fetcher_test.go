package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

type countingPacer struct {
	waits atomic.Int64
}

func (p *countingPacer) Wait(context.Context) error {
	p.waits.Add(1)
	return nil
}

func newTestFetcher(t *testing.T, retries int) (*Fetcher, *countingPacer) {
	t.Helper()
	pacer := &countingPacer{}
	f := New(Config{
		UserAgent:  "bookcrawler-test/1.0",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	}, pacer, zap.NewNop())
	t.Cleanup(func() { _ = f.Close() })
	return f, pacer
}

func TestFetcherFirstAttemptUnpaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f, pacer := newTestFetcher(t, 4)
	body, err := f.Text(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "hello", body)
	require.Zero(t, pacer.waits.Load(), "first attempt must not wait on the pacer")
}

func TestFetcherRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f, pacer := newTestFetcher(t, 4)
	body, err := f.Text(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", body)
	require.EqualValues(t, 3, calls.Load())
	require.EqualValues(t, 2, pacer.waits.Load(), "each retry must pace first")
}

func TestFetcherExhaustsRetries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, 2)
	_, err := f.Text(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 attempts")
	require.Contains(t, err.Error(), "http 403")
}

func TestFetcherOKStatusOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("# empty robots"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, 2)
	body, err := f.Bytes(context.Background(), srv.URL, crawl.WithOKStatuses(200, 404))
	require.NoError(t, err)
	require.Equal(t, []byte("# empty robots"), body)
}

func TestFetcherCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, _ := newTestFetcher(t, 3)
	_, err := f.Text(ctx, srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
