package storageserver

import "github.com/mortehu/cantera-cas/pkg/indexfmt"

// Capacity reports the four counters named in the external interface.
type Capacity struct {
	Total       uint64
	Available   uint64
	Unreclaimed uint64
	Garbage     uint64
}

// Capacity computes filesystem totals plus the repository's unreclaimed
// (physical-length-minus-live-utilization, summed over data files) and
// garbage (bytes currently GC-marked) counters.
func (s *Server) Capacity() (Capacity, error) {
	total, available, err := s.statfs()
	if err != nil {
		return Capacity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var unreclaimed uint64
	for _, e := range s.heap {
		unreclaimed += uint64(e.length - s.utilization[e.idx])
	}

	return Capacity{
		Total:       total,
		Available:   available,
		Unreclaimed: unreclaimed,
		Garbage:     s.garbageSize,
	}, nil
}

// unreclaimedSpacePerFile returns, for every data file, its physical
// length minus its live-byte utilization — the selection metric compact
// uses to pick which file to drain.
func (s *Server) unreclaimedSpacePerFile() [indexfmt.MaxDataFiles]int64 {
	var result [indexfmt.MaxDataFiles]int64
	for _, e := range s.heap {
		result[e.idx] = e.length - s.utilization[e.idx]
	}
	return result
}
