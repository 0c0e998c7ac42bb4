// cas-balanced runs the stateless cluster front-end named in spec.md §4.5:
// it loads a balancercfg.Config describing the backend topology, then
// speaks the same wire protocol as cas-storaged over a TCP listener, plus
// the same admin HTTP surface on a second listener.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/pkg/balancer"
	"github.com/mortehu/cantera-cas/pkg/balancercfg"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/dlogger"
	"github.com/mortehu/cantera-cas/pkg/metrics"
	"github.com/mortehu/cantera-cas/pkg/rpcserver"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

func main() {
	var (
		configPath = flag.String("config", "", "balancer topology YAML file (required)")
		listenAddr = flag.String("listen", "0.0.0.0:6001", "CAS protocol listen address")
		adminAddr  = flag.String("admin-listen", "127.0.0.1:6012", "admin HTTP listen address")
		logLevel   = flag.String("log-level", dlogger.LogLevelInfo, "log level: debug, info, none")
	)
	flag.Parse()

	if *configPath == "" {
		log.Fatal("cas-balanced: -config is required")
	}

	logger, err := dlogger.GetLogger(*logLevel)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := balancercfg.Load(*configPath)
	if err != nil {
		logger.Fatal("loading balancer config", zap.Error(err))
	}

	ctx := context.Background()

	backends := make([]*sharding.Backend, len(cfg.Backends))
	for i, b := range cfg.Backends {
		client := casclient.New(b.Addr)
		buckets, err := client.GetConfig(ctx)
		if err != nil {
			logger.Fatal("fetching backend config", zap.String("addr", b.Addr), zap.Error(err))
		}
		backends[i] = &sharding.Backend{
			Client:        client,
			FailureDomain: b.FailureDomain,
			Buckets:       buckets,
		}
	}

	bal := balancer.New(backends, cfg.Replicas, logger)

	m := metrics.New("cas_balanced")

	server := rpcserver.NewBalancerServer(bal, logger, rpcserver.WithBalancerMetrics(m))

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatal("listening", zap.Error(err))
	}

	go serveAdmin(*adminAddr, m, logger)

	logger.Info("cas-balanced listening", zap.String("addr", *listenAddr), zap.Int("backends", len(backends)))
	if err := server.Serve(ctx, listener); err != nil {
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
