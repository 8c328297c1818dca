// Package app initializes and holds long-lived application services,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/clock/system"
	"github.com/snikitin/bookcrawler/internal/crawl"
	"github.com/snikitin/bookcrawler/internal/extract"
	"github.com/snikitin/bookcrawler/internal/fetch"
	"github.com/snikitin/bookcrawler/internal/logging"
	"github.com/snikitin/bookcrawler/internal/metrics"
	"github.com/snikitin/bookcrawler/internal/pace"
	"github.com/snikitin/bookcrawler/internal/store/sqlite"
)

// App holds the shared services every command needs: validated
// configuration, the logger, and lazily-opened storage.
type App struct {
	Config crawl.Config
	Logger *zap.Logger
	Clock  crawl.Clock

	store *sqlite.Store
}

// New builds the App from the current Viper state. It fails fast on
// invalid configuration.
func New(_ context.Context) (*App, error) {
	logger, err := logging.New(viper.GetBool("log.development"))
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	cfg, err := crawl.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	metrics.Init()

	return &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
	}, nil
}

// Close releases held resources. Safe to call when nothing was opened.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Logger.Warn("closing store", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

// Store opens the work store on first use and caches it.
func (a *App) Store() (*sqlite.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := sqlite.Open(a.Config.DBPath, a.Clock)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", a.Config.DBPath, err)
	}
	a.store = store
	return store, nil
}

// NewPacer builds the shared request pacer.
func (a *App) NewPacer() *pace.Pacer {
	return pace.New(a.Config.MinDelay, a.Config.MaxDelay)
}

// NewFetcher builds the retrying HTTP fetcher on top of a pacer.
func (a *App) NewFetcher(pacer crawl.Pacer) *fetch.Fetcher {
	return fetch.New(fetch.Config{
		UserAgent:  a.Config.UserAgent,
		Timeout:    a.Config.Timeout,
		MaxRetries: a.Config.MaxRetries,
	}, pacer, a.Logger)
}

// NewExtractor builds the page extractor. The fetcher enables the reviews
// deep pass and may be nil.
func (a *App) NewExtractor(fetcher crawl.Fetcher) *extract.Extractor {
	return extract.New(fetcher, a.Clock, a.Logger)
}

// StartMetrics exposes the Prometheus endpoint when metrics.addr is
// configured. The returned stop function is always safe to call.
func (a *App) StartMetrics() func() {
	if a.Config.MetricsAddr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: a.Config.MetricsAddr, Handler: mux}

	go func() {
		a.Logger.Info("metrics endpoint up", zap.String("addr", a.Config.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
