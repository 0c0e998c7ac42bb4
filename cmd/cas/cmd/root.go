package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mortehu/cantera-cas/internal"
)

type rootParamsT struct {
	server      string
	minSize     uint64
	maxSize     uint64
	listMode    string
	exclude     []string
	cpuProfile  string
	memPollMs   uint
}

var params rootParamsT

// rootCmd is the balancer front-end tool named in spec.md §6: get, put, rm,
// list, capacity, compact, begin-gc, mark-gc, end-gc, balance, export and
// ping all speak the same wire protocol, whether the other end is a single
// storage backend or a balancer.
var rootCmd = &cobra.Command{
	Use:   "cas",
	Short: "cas operates a content-addressable storage cluster",
	Long: `cas is the operational front-end for a content-addressable storage
cluster: it can talk to a single storage backend or to a balancer, since
both answer the same wire protocol.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if params.cpuProfile != "" {
			f, err := os.Create(params.cpuProfile)
			if err != nil {
				log.Fatal(err)
			}
			_ = pprof.StartCPUProfile(f)
		}
		if params.memPollMs > 0 {
			if err := internal.MemPoll(internal.MemPollParams{PollMs: params.memPollMs}); err != nil {
				log.Fatal(err)
			}
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if params.cpuProfile != "" {
			pprof.StopCPUProfile()
		}
	},
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&params.server, "server", "", "storage server or balancer address (env CA_CAS_SERVER)")
	rootCmd.PersistentFlags().Uint64Var(&params.minSize, "min-size", 0, "minimum object size for list/export")
	rootCmd.PersistentFlags().Uint64Var(&params.maxSize, "max-size", 0, "maximum object size for list/export (0 = unbounded)")
	rootCmd.PersistentFlags().StringVar(&params.listMode, "list-mode", "default", "list mode: default or garbage")
	rootCmd.PersistentFlags().StringSliceVar(&params.exclude, "exclude", nil, "glob of key-list files whose keys export skips, may be repeated")
	rootCmd.PersistentFlags().StringVar(&params.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().UintVar(&params.memPollMs, "mem-poll-ms", 0, "poll and log heap growth every N milliseconds (0 disables)")
}

func initConfig() {
	viper.SetEnvPrefix("ca_cas")
	viper.AutomaticEnv()
	if params.server == "" {
		if v := viper.GetString("server"); v != "" {
			params.server = v
		}
	}
	if params.server == "" {
		params.server = "127.0.0.1:6001"
	}
}

// Execute adds all child commands to rootCmd and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
