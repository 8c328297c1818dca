package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newAddCmd manually injects URLs into the queue.
func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <url> [url...]",
		Short: "Add URLs to the crawl queue by hand.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}

			var urls []string
			for _, u := range args {
				if u = strings.TrimSpace(u); u != "" {
					urls = append(urls, u)
				}
			}
			added, err := store.Enqueue(cmd.Context(), urls)
			if err != nil {
				return err
			}
			fmt.Printf("OK: added %d new URLs to queue.\n", added)
			return nil
		},
	}
}
