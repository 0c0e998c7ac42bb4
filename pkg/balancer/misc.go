package balancer

import (
	"context"
	"sync"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

// Remove requires every backend connected and removes the key from all of
// them in parallel, per spec.md §4.5.
func (s *Server) Remove(ctx context.Context, key caskey.Key) error {
	backends, err := s.allBackends()
	if err != nil {
		return err
	}
	return fanOut(backends, func(b *sharding.Backend) error {
		return backendClient(b).Remove(ctx, key)
	})
}

// Capacity fans out in parallel and sums all four counters.
func (s *Server) Capacity(ctx context.Context) (casclient.Capacity, error) {
	backends, err := s.allBackends()
	if err != nil {
		return casclient.Capacity{}, err
	}

	var (
		mu    sync.Mutex
		total casclient.Capacity
	)
	err = fanOut(backends, func(b *sharding.Backend) error {
		c, err := backendClient(b).Capacity(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		total.Total += c.Total
		total.Available += c.Available
		total.Unreclaimed += c.Unreclaimed
		total.Garbage += c.Garbage
		mu.Unlock()
		return nil
	})
	if err != nil {
		return casclient.Capacity{}, err
	}
	return total, nil
}

// List aggregates every backend's listing as a concatenated pagination
// source: backends are listed one after another, and fn is invoked for each
// key as that backend's pages arrive, without first collecting a backend's
// full list.
func (s *Server) List(ctx context.Context, mode casclient.ListMode, minSize, maxSize uint64, fn func(caskey.Key) error) error {
	backends, err := s.allBackends()
	if err != nil {
		return err
	}
	for _, b := range backends {
		if err := backendClient(b).List(ctx, mode, minSize, maxSize, fn); err != nil {
			return err
		}
	}
	return nil
}

// GetConfig concatenates every backend's buckets into the cluster config.
func (s *Server) GetConfig(ctx context.Context) ([]caskey.Key, error) {
	backends, err := s.allBackends()
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		buckets []caskey.Key
	)
	err = fanOut(backends, func(b *sharding.Backend) error {
		bb, err := backendClient(b).GetConfig(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		buckets = append(buckets, bb...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// Compact runs one compaction chain per failure domain, all chains in
// parallel; within a domain, compactions run serially to bound the number
// of simultaneously-degraded replicas, per spec.md §4.5.
func (s *Server) Compact(ctx context.Context, syncMode bool) error {
	byDomain := make(map[int][]*sharding.Backend)
	for _, b := range s.info.Backends {
		byDomain[b.FailureDomain] = append(byDomain[b.FailureDomain], b)
	}

	var wg sync.WaitGroup
	errC := make(chan error, len(byDomain))
	for domain, backends := range byDomain {
		wg.Add(1)
		go func(domain int, backends []*sharding.Backend) {
			defer wg.Done()
			lock := s.perDomain[domain]
			lock.Lock()
			defer lock.Unlock()
			for _, b := range backends {
				if err := backendClient(b).Compact(ctx, syncMode); err != nil {
					errC <- err
					return
				}
			}
		}(domain, backends)
	}
	wg.Wait()

	select {
	case err := <-errC:
		return err
	default:
		return nil
	}
}
