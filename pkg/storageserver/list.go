package storageserver

import (
	"sort"

	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// ListMode selects between every live object and only GC-marked ones.
type ListMode int

const (
	// ListDefault lists every live object.
	ListDefault ListMode = iota
	// ListGarbage lists only objects currently flagged as candidate garbage.
	ListGarbage
)

// List snapshots the current index, filters by [minSize, maxSize) and
// mode, and returns it sorted by offset for scan locality, matching
// ObjectListImpl in storage-server.cc. The returned slice is a stable
// snapshot; it does not reflect puts/removes made after List returns.
func (s *Server) List(mode ListMode, minSize, maxSize uint64) ([]indexfmt.Entry, error) {
	if s.disableRead {
		return nil, errs.MalformedInput("storageserver: reads are disabled on this replica")
	}

	s.mu.Lock()
	entries := make([]indexfmt.Entry, 0, len(s.index))
	for _, e := range s.index {
		if uint64(e.Size) < minSize || uint64(e.Size) >= maxSize {
			continue
		}
		if mode == ListGarbage {
			if _, marked := s.marks[e.Key]; !marked {
				continue
			}
		}
		entries = append(entries, e)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })
	return entries, nil
}
