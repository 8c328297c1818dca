// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal        *prometheus.CounterVec
	fetchRetriesTotal prometheus.Counter
	enqueuedTotal     prometheus.Counter
	queuePending      prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookcrawler_pages_total",
				Help: "Total number of pages processed, labeled by outcome.",
			},
			[]string{"result"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookcrawler_fetch_retries_total",
				Help: "Total number of HTTP fetch retry attempts.",
			},
		)

		enqueuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bookcrawler_urls_enqueued_total",
				Help: "Total number of newly discovered URLs enqueued.",
			},
		)

		queuePending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookcrawler_queue_pending",
				Help: "Number of queue entries currently pending.",
			},
		)
	})
}

// ObservePage records one processed page outcome ("done" or "failed").
func ObservePage(result string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(result).Inc()
}

// ObserveFetchRetry records one HTTP retry attempt.
func ObserveFetchRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// ObserveEnqueued records newly enqueued URLs.
func ObserveEnqueued(n int64) {
	if enqueuedTotal == nil || n <= 0 {
		return
	}
	enqueuedTotal.Add(float64(n))
}

// SetQueuePending publishes the current pending queue depth.
func SetQueuePending(n int64) {
	if queuePending == nil {
		return
	}
	queuePending.Set(float64(n))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
