// Package balancer implements the stateless cluster front-end named in
// spec.md §4.5: it delegates every operation to backend storage servers
// via pkg/sharding's consistent hash ring, fanning writes out to every
// replica and retrying reads across the ring on backend failure.
package balancer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/dlogger"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

// Server is the balancer's in-process state: the hash ring built from
// every backend's buckets, the cluster-wide replication factor, and the
// in-flight cluster GC cycle bookkeeping.
type Server struct {
	info        *sharding.Info
	replication int
	log         *zap.Logger

	gcMu         sync.Mutex
	gcID         uint64
	gcBackendIDs map[*sharding.Backend]uint64

	compactMu sync.Mutex // one compaction chain per failure domain; serialized via perDomain below
	perDomain map[int]*sync.Mutex
}

// New builds a balancer over backends, replicating every put to r distinct
// failure domains.
func New(backends []*sharding.Backend, replication int, log *zap.Logger) *Server {
	if log == nil {
		log = dlogger.MustGetLogger(dlogger.LogLevelNone)
	}
	perDomain := make(map[int]*sync.Mutex)
	for _, b := range backends {
		if _, ok := perDomain[b.FailureDomain]; !ok {
			perDomain[b.FailureDomain] = &sync.Mutex{}
		}
	}
	return &Server{
		info:         sharding.New(backends),
		replication:  replication,
		log:          log,
		gcBackendIDs: make(map[*sharding.Backend]uint64),
		perDomain:    perDomain,
	}
}

func backendClient(b *sharding.Backend) *casclient.Client {
	return b.Client.(*casclient.Client)
}

// fanOut runs f over every backend concurrently and returns the first
// error encountered, grounded on pkg/storage/multi.go's MultiPut
// waitgroup-plus-buffered-error-channel pattern.
func fanOut(backends []*sharding.Backend, f func(*sharding.Backend) error) error {
	errC := make(chan error, len(backends))
	var wg sync.WaitGroup
	for _, b := range backends {
		wg.Add(1)
		go func(b *sharding.Backend) {
			defer wg.Done()
			if err := f(b); err != nil {
				errC <- err
			}
		}(b)
	}
	wg.Wait()
	select {
	case err := <-errC:
		return err
	default:
		return nil
	}
}

// allBackends requires every backend to be connected, per spec.md §4.5's
// failure semantics for cluster-wide operations.
func (s *Server) allBackends() ([]*sharding.Backend, error) {
	for _, b := range s.info.Backends {
		if !b.Client.Connected() {
			return nil, errs.InsufficientReplicas("balancer: backend unreachable for cluster-wide operation")
		}
	}
	return s.info.Backends, nil
}
