package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snikitin/bookcrawler/internal/discover"
	"github.com/snikitin/bookcrawler/internal/id/uuid"
	"github.com/snikitin/bookcrawler/internal/runner"
)

// newCrawlCmd runs a crawl cycle, optionally preceded by discovery.
func newCrawlCmd() *cobra.Command {
	var (
		withDiscover  bool
		discoverLimit int64
		limit         int
		withReviews   bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Process the pending queue with the worker pool.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}

			stopMetrics := a.StartMetrics()
			defer stopMetrics()

			pacer := a.NewPacer()
			fetcher := a.NewFetcher(pacer)
			defer fetcher.Close()
			extractor := a.NewExtractor(fetcher)

			r := runner.New(store, fetcher, extractor, pacer, a.Clock,
				uuid.New(), a.Logger, runner.Config{
					Workers:       a.Config.Workers,
					Limit:         limit,
					DiscoverLimit: discoverLimit,
					WithReviews:   withReviews,
				})

			if withDiscover {
				ctx, cancel := context.WithCancel(cmd.Context())
				stream, err := discover.New(fetcher, a.Config, a.Logger).Stream(ctx, a.Config.Method)
				if err != nil {
					cancel()
					return err
				}
				added, err := r.EnqueueStream(ctx, stream)
				cancel()
				if err != nil {
					return err
				}
				fmt.Printf("OK: discovered & enqueued: %d book URLs\n", added)
			}

			processed, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("OK: crawl finished. Processed: %d. DB: %s\n", processed, a.Config.DBPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDiscover, "discover", false, "run discovery before crawling")
	cmd.Flags().Int64Var(&discoverLimit, "discover-limit", 0, "cap URLs enqueued by discovery (0 = no cap)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max pages to process this run (0 = drain the queue)")
	cmd.Flags().BoolVar(&withReviews, "with-reviews", false, "also extract and store reader reviews")
	return cmd
}
