package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

// newStatusCmd prints queue and result counters.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show crawl progress.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}

			sum, err := store.StatusSummary(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println("Queue:")
			for _, st := range []crawl.QueueStatus{
				crawl.QueuePending, crawl.QueueInProgress, crawl.QueueDone, crawl.QueueFailed,
			} {
				fmt.Printf("  %-12s: %d\n", st, sum.Queue[st])
			}
			fmt.Println("Books:")
			for _, st := range []crawl.BookStatus{crawl.BookOK, crawl.BookError} {
				fmt.Printf("  %-12s: %d\n", st, sum.Books[st])
			}
			if sum.LastOKScrapedAt != "" {
				fmt.Printf("Last successful scrape: %s\n", sum.LastOKScrapedAt)
			}
			return nil
		},
	}
}
