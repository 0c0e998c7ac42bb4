package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mortehu/cantera-cas/pkg/balancer"
	"github.com/mortehu/cantera-cas/pkg/balancercfg"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

var balanceCmd = &cobra.Command{
	Use:   "balance CONFIG",
	Short: "Move objects to their correct backends per CONFIG's topology",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := balancercfg.Load(args[0])
		if err != nil {
			fatal("balance: %v", err)
		}

		backends := make([]*sharding.Backend, len(cfg.Backends))
		for i, b := range cfg.Backends {
			client := casclient.New(b.Addr)
			buckets, err := client.GetConfig(ctx)
			if err != nil {
				fatal("balance: fetching config from %s: %v", b.Addr, err)
			}
			backends[i] = &sharding.Backend{
				Client:        client,
				FailureDomain: b.FailureDomain,
				Buckets:       buckets,
			}
		}

		info := sharding.New(backends)

		stats, err := balancer.Rebalance(ctx, info, cfg.Replicas, backends)
		if err != nil {
			fatal("balance: %v", err)
		}

		fmt.Printf("%d objects (%d unique). %d moves and %d removals required\n",
			stats.ObjectsSeen, stats.UniqueObjects, stats.Moves, stats.Removals)
		for _, err := range stats.Errors {
			warn("balance: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
