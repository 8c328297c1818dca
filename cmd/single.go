package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snikitin/bookcrawler/internal/crawl"
	"github.com/snikitin/bookcrawler/internal/normalize"
)

// newSingleCmd probes one URL and prints the extracted fields, mainly for
// checking selectors against the live site.
func newSingleCmd() *cobra.Command {
	var (
		withReviews bool
		save        bool
	)

	cmd := &cobra.Command{
		Use:   "single <url>",
		Short: "Fetch and extract a single book page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			url := args[0]

			pacer := a.NewPacer()
			fetcher := a.NewFetcher(pacer)
			defer fetcher.Close()
			extractor := a.NewExtractor(fetcher)

			html, err := fetcher.Text(cmd.Context(), url)
			if err != nil {
				return err
			}

			res := extractor.Extract(cmd.Context(), url, html)
			switch res.Kind {
			case crawl.PageBlocked:
				return fmt.Errorf("failed: %s", res.Reason)
			case crawl.PageNotBook:
				return fmt.Errorf("failed: %s", res.Reason)
			}

			rec := normalize.Book(res.Book)
			var reviews []crawl.ReviewRecord
			if withReviews {
				reviews, err = extractor.ExtractReviews(cmd.Context(), url, html)
				if err != nil {
					return fmt.Errorf("reviews pass: %w", err)
				}
				for i := range reviews {
					reviews[i] = normalize.Review(reviews[i])
				}
			}

			printBook(rec)
			if withReviews {
				fmt.Printf("  reviews count       : %d\n", len(reviews))
			}

			if save {
				store, err := a.Store()
				if err != nil {
					return err
				}
				if err := store.UpsertBook(cmd.Context(), rec); err != nil {
					return err
				}
				if len(reviews) > 0 {
					if _, err := store.UpsertReviews(cmd.Context(), reviews); err != nil {
						return err
					}
				}
				fmt.Printf("OK: saved to %s\n", a.Config.DBPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withReviews, "with-reviews", false, "also extract reader reviews")
	cmd.Flags().BoolVar(&save, "save", false, "persist the result to the database")
	return cmd
}

func printBook(rec crawl.BookRecord) {
	fields := []struct{ label, value string }{
		{"url", rec.URL},
		{"title", rec.Title},
		{"authors", rec.Authors},
		{"price", rec.Price},
		{"rating", rec.Rating},
		{"rating_count", rec.RatingCount},
		{"genres", rec.Genres},
		{"formats", rec.Formats},
		{"pages", rec.Pages},
		{"age_restriction", rec.AgeRestriction},
		{"series_title", rec.SeriesTitle},
		{"cover_url", rec.CoverURL},
		{"description", rec.Description},
		{"scraped_at", rec.ScrapedAt},
	}
	for _, f := range fields {
		fmt.Printf("  %-20s: %s\n", f.label, f.value)
	}
}
