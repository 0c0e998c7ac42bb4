package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var capacityCmd = &cobra.Command{
	Use:   "capacity",
	Short: "Print capacity figures",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		capacity, err := client.Capacity(context.Background())
		if err != nil {
			fatal("capacity: %v", err)
		}
		fmt.Printf("total:       %d\n", capacity.Total)
		fmt.Printf("available:   %d\n", capacity.Available)
		fmt.Printf("unreclaimed: %d\n", capacity.Unreclaimed)
		fmt.Printf("garbage:     %d\n", capacity.Garbage)
	},
}

func init() {
	rootCmd.AddCommand(capacityCmd)
}
