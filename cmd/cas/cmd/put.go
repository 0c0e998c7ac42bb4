package cmd

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/spf13/cobra"
)

var putSync bool

var putCmd = &cobra.Command{
	Use:   "put [PATH...]",
	Short: "Insert an object from standard input, or from the given files",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		ctx := context.Background()
		status := 0

		if len(args) == 0 {
			data, err := ioutil.ReadAll(os.Stdin)
			if err != nil {
				fatal("put: reading standard input: %v", err)
			}
			key, err := client.Put(ctx, data, putSync)
			if err != nil {
				fatal("put: %v", err)
			}
			printKey(key)
			return
		}

		for _, path := range args {
			data, err := ioutil.ReadFile(path)
			if err != nil {
				warn("put %s: %v", path, err)
				status = 1
				continue
			}
			key, err := client.Put(ctx, data, putSync)
			if err != nil {
				warn("put %s: %v", path, err)
				status = 1
				continue
			}
			printKey(key)
		}
		os.Exit(status)
	},
}

func printKey(key string) {
	os.Stdout.WriteString(key + "\n")
}

func init() {
	putCmd.Flags().BoolVar(&putSync, "sync", false, "fsync the write before returning")
	rootCmd.AddCommand(putCmd)
}
