package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var compactSync bool

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Trigger a compaction pass",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		if err := client.Compact(context.Background(), compactSync); err != nil {
			fatal("compact: %v", err)
		}
	},
}

func init() {
	compactCmd.Flags().BoolVar(&compactSync, "sync", false, "fsync data files and the index after compacting")
	rootCmd.AddCommand(compactCmd)
}
