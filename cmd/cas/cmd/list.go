package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mortehu/cantera-cas/pkg/caskey"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List object keys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		err := client.List(context.Background(), listMode(), params.minSize, maxSize(), func(key caskey.Key) error {
			fmt.Println(key.String())
			return nil
		})
		if err != nil {
			fatal("list: %v", err)
		}
		os.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
