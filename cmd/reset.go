package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newResetCmd wipes extracted data and requeues everything. Destructive,
// so it refuses to run without the confirmation flag.
func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all extracted data and requeue every URL.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("reset deletes all extracted books and reviews; re-run with --yes to confirm")
			}
			a, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}

			requeued, err := store.ResetAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("OK: reset complete, %d URLs requeued.\n", requeued)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive reset")
	return cmd
}
