package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Verify the server is reachable",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		if _, err := client.Capacity(context.Background()); err != nil {
			fatal("ping: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
