package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snikitin/bookcrawler/internal/export"
)

// newExportCmd writes the crawl results to an XLSX workbook.
func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export books and reviews to an XLSX workbook.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}

			if out == "" {
				out = viper.GetString("export.out")
			}

			books, err := store.ListBooks(cmd.Context())
			if err != nil {
				return err
			}
			reviews, err := store.ListReviews(cmd.Context())
			if err != nil {
				return err
			}

			if err := export.WriteXLSX(out, books, reviews); err != nil {
				return err
			}
			fmt.Printf("OK: exported %d books, %d reviews to %s\n", len(books), len(reviews), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output path (default from export.out config)")
	return cmd
}
