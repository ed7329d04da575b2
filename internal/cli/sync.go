package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSyncCmd creates the 'sync' command: a single reconciliation sweep.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reference sync sweep and exit",
		Long: `Run one reference sync sweep and exit.

Walks every stored file reference, migrates legacy credential-based
references to durable share links, refreshes sizes and marks references
whose source is gone. References synced within the last day are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			a.syncer.Sweep(cmd.Context())
			fmt.Println("sync sweep completed")
			return nil
		},
	}
	return cmd
}
