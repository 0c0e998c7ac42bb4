package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get KEY...",
	Short: "Retrieve the given objects and write them to standard output",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		ctx := context.Background()
		status := 0
		for _, key := range args {
			if err := client.Get(ctx, key, 0, 0, os.Stdout); err != nil {
				warn("get %s: %v", key, err)
				status = 1
			}
		}
		os.Exit(status)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
