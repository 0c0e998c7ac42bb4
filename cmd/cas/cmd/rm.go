package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mortehu/cantera-cas/pkg/caskey"
)

var rmCmd = &cobra.Command{
	Use:   "rm KEY...",
	Short: "Permanently remove the given objects",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		ctx := context.Background()
		status := 0
		for _, keyStr := range args {
			key, err := caskey.Parse(keyStr)
			if err != nil {
				warn("rm %s: %v", keyStr, err)
				status = 1
				continue
			}
			if err := client.Remove(ctx, key); err != nil {
				warn("rm %s: %v", keyStr, err)
				status = 1
			}
		}
		os.Exit(status)
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
