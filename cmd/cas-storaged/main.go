// cas-storaged runs a single storage backend's wire protocol over a TCP
// listener, plus an admin HTTP surface (/metrics, /healthz, /readyz) on a
// second listener, per spec.md §6 and §6.3.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/internal"
	"github.com/mortehu/cantera-cas/pkg/dlogger"
	"github.com/mortehu/cantera-cas/pkg/metrics"
	"github.com/mortehu/cantera-cas/pkg/rpcserver"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
)

func main() {
	var (
		dir         = flag.String("dir", ".", "repository directory")
		listenAddr  = flag.String("listen", "0.0.0.0:6001", "CAS protocol listen address")
		adminAddr   = flag.String("admin-listen", "127.0.0.1:6011", "admin HTTP listen address")
		logLevel    = flag.String("log-level", dlogger.LogLevelInfo, "log level: debug, info, none")
		disableRead = flag.Bool("disable-read", false, "disable get/list, for write-only maintenance windows")
		cpuProfile  = flag.String("cpuprofile", "", "write a CPU profile to this file")
		memPollMs   = flag.Uint("mem-poll-ms", 0, "poll and log heap growth every N milliseconds (0 disables)")
	)
	flag.Parse()

	logger, err := dlogger.GetLogger(*logLevel)
	if err != nil {
		log.Fatal(err)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		_ = pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}
	if *memPollMs > 0 {
		if err := internal.MemPoll(internal.MemPollParams{PollMs: *memPollMs, Logger: logger}); err != nil {
			log.Fatal(err)
		}
	}

	var opts []storageserver.Option
	opts = append(opts, storageserver.Logger(logger))
	if *disableRead {
		opts = append(opts, storageserver.DisableRead())
	}

	store, err := storageserver.Open(*dir, opts...)
	if err != nil {
		logger.Fatal("opening repository", zap.Error(err))
	}
	defer store.Close()

	m := metrics.New("cas_storaged")

	server := rpcserver.New(store, logger, rpcserver.WithMetrics(m))

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatal("listening", zap.Error(err))
	}

	go serveAdmin(*adminAddr, m, logger)

	logger.Info("cas-storaged listening", zap.String("addr", *listenAddr))
	if err := server.Serve(context.Background(), listener); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
}

func serveAdmin(addr string, m *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", healthzEndpoint)
	mux.HandleFunc("/readyz", readyzEndpoint)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("admin http server", zap.Error(err))
	}
}

func healthzEndpoint(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func readyzEndpoint(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}
