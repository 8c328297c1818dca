// Package cmd wires the CLI commands around the crawl services.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snikitin/bookcrawler/internal/app"
	"github.com/snikitin/bookcrawler/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is a variable so tests can substitute a factory.
var newApp = app.New

// appFromContext retrieves the injected App. Commands run after
// PersistentPreRunE, so absence is a programming error.
func appFromContext(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookcrawler",
		Short: "A resumable book catalog crawler.",
		Long: `bookcrawler discovers book pages through sitemaps or the genre
catalog, crawls them politely through a shared rate limiter, and keeps all
progress in a single SQLite file so interrupted runs can simply be
restarted.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		}
		config.InitConfig()
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	pf.String("db", "books.sqlite", "path to the SQLite database file")
	pf.String("base-url", "https://www.litres.ru/", "site root to crawl")
	pf.String("method", "catalog", "discovery method: catalog or sitemap")
	pf.Int("max-pages-per-genre", 50, "pagination cap inside one genre")
	pf.String("user-agent", config.DefaultUserAgent, "User-Agent header")
	pf.Duration("timeout", 0, "HTTP request timeout (default 30s)")
	pf.Duration("min-delay", 0, "minimum delay between any two requests (default 500ms)")
	pf.Duration("max-delay", 0, "maximum delay between any two requests (default 1.5s)")
	pf.Int("retries", 4, "fetch attempts per URL")
	pf.Int("workers", 5, "concurrent crawl workers")
	pf.String("metrics-addr", "", "expose Prometheus metrics on this address (empty disables)")
	pf.Bool("dev", false, "use development logging")

	bind := func(key, flag string) {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(flag)))
	}
	bind("db.path", "db")
	bind("crawler.base_url", "base-url")
	bind("crawler.method", "method")
	bind("crawler.max_pages_per_genre", "max-pages-per-genre")
	bind("crawler.user_agent", "user-agent")
	bind("http.timeout", "timeout")
	bind("crawler.min_delay", "min-delay")
	bind("crawler.max_delay", "max-delay")
	bind("crawler.retries", "retries")
	bind("crawler.workers", "workers")
	bind("metrics.addr", "metrics-addr")
	bind("log.development", "dev")

	cmd.AddCommand(
		newDiscoverCmd(),
		newCrawlCmd(),
		newSingleCmd(),
		newAddCmd(),
		newStatusCmd(),
		newResetCmd(),
		newExportCmd(),
	)

	return cmd
}

// Execute is the main entry point. SIGINT/SIGTERM cancel the command
// context so in-flight work settles into a resumable state.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
