package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mortehu/cantera-cas/pkg/caskey"
)

var beginGCCmd = &cobra.Command{
	Use:   "begin-gc",
	Short: "Start a garbage collection generation and print its ID",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		id, err := client.BeginGC(context.Background())
		if err != nil {
			fatal("begin-gc: %v", err)
		}
		fmt.Println(id)
	},
}

var markGCCmd = &cobra.Command{
	Use:   "mark-gc KEY...",
	Short: "Mark the given objects as live in the current generation",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		keys := make([]caskey.Key, len(args))
		for i, keyStr := range args {
			key, err := caskey.Parse(keyStr)
			if err != nil {
				fatal("mark-gc %s: %v", keyStr, err)
			}
			keys[i] = key
		}
		if err := client.MarkGC(context.Background(), keys); err != nil {
			fatal("mark-gc: %v", err)
		}
	},
}

var endGCCmd = &cobra.Command{
	Use:   "end-gc ID",
	Short: "End a garbage collection generation, tombstoning anything left unmarked",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fatal("end-gc: %v", err)
		}
		client := newClient()
		if err := client.EndGC(context.Background(), id); err != nil {
			fatal("end-gc: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(beginGCCmd)
	rootCmd.AddCommand(markGCCmd)
	rootCmd.AddCommand(endGCCmd)
}
