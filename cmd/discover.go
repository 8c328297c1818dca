package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snikitin/bookcrawler/internal/discover"
	"github.com/snikitin/bookcrawler/internal/id/uuid"
	"github.com/snikitin/bookcrawler/internal/runner"
)

// newDiscoverCmd streams discovery into the queue without crawling.
func newDiscoverCmd() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find book URLs and enqueue them for crawling.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}

			pacer := a.NewPacer()
			fetcher := a.NewFetcher(pacer)
			defer fetcher.Close()

			// Canceling releases the discovery goroutine when the limit
			// cuts the stream short.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			stream, err := discover.New(fetcher, a.Config, a.Logger).Stream(ctx, a.Config.Method)
			if err != nil {
				return err
			}

			r := runner.New(store, fetcher, a.NewExtractor(nil), pacer, a.Clock,
				uuid.New(), a.Logger, runner.Config{DiscoverLimit: limit})
			added, err := r.EnqueueStream(ctx, stream)
			if err != nil {
				return err
			}

			fmt.Printf("OK: discovered & enqueued: %d book URLs\n", added)
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "stop after enqueueing this many URLs (0 = no limit)")
	return cmd
}
