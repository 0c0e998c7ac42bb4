package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

// BeginGC fans out to every backend in parallel, records each backend's
// returned id, and assigns a cluster-wide generation id, per spec.md §4.6.
func (s *Server) BeginGC(ctx context.Context) (uint64, error) {
	backends, err := s.allBackends()
	if err != nil {
		return 0, err
	}

	s.gcMu.Lock()
	defer s.gcMu.Unlock()

	ids := make(map[*sharding.Backend]uint64, len(backends))
	var mu sync.Mutex
	err = fanOut(backends, func(b *sharding.Backend) error {
		id, err := backendClient(b).BeginGC(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		ids[b] = id
		mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, err
	}

	nowUSec := uint64(time.Now().UnixMicro())
	next := s.gcID + 1
	if nowUSec > next {
		s.gcID = nowUSec
	} else {
		s.gcID = next
	}
	s.gcBackendIDs = ids
	return s.gcID, nil
}

// MarkGC fans the key set to every backend.
func (s *Server) MarkGC(ctx context.Context, keys []caskey.Key) error {
	backends, err := s.allBackends()
	if err != nil {
		return err
	}
	return fanOut(backends, func(b *sharding.Backend) error {
		return backendClient(b).MarkGC(ctx, keys)
	})
}

// EndGC fails if id does not match the balancer's current cluster-wide
// generation (a second beginGC in the interim invalidates this call);
// otherwise it issues each backend's endGC with that backend's own id from
// the matching beginGC fan-out.
func (s *Server) EndGC(ctx context.Context, id uint64) error {
	s.gcMu.Lock()
	if id != s.gcID {
		s.gcMu.Unlock()
		return errs.GCRace("balancer: endGC id does not match current cluster generation")
	}
	backendIDs := s.gcBackendIDs
	s.gcMu.Unlock()

	backends := make([]*sharding.Backend, 0, len(backendIDs))
	for b := range backendIDs {
		backends = append(backends, b)
	}

	return fanOut(backends, func(b *sharding.Backend) error {
		return backendClient(b).EndGC(ctx, backendIDs[b])
	})
}
