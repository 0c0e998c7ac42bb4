package storageserver

import (
	"time"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// BeginGC starts a new mark-and-sweep cycle: every currently-live key is
// marked as candidate garbage, and a fresh monotonic generation id is
// assigned. The protocol is inverted from classic mark-and-sweep — callers
// then un-mark (via MarkGC) the keys they want to keep.
func (s *Server) BeginGC() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowUSec := uint64(time.Now().UnixMicro())
	next := s.gcID + 1
	if nowUSec > next {
		s.gcID = nowUSec
	} else {
		s.gcID = next
	}

	s.marks = make(map[caskey.Key]struct{}, len(s.index))
	s.garbageSize = 0
	for key, e := range s.index {
		s.marks[key] = struct{}{}
		s.garbageSize += uint64(e.Size)
	}
	return s.gcID
}

// MarkGC un-marks the given keys, removing them from the candidate-garbage
// set — the client calls this for every key it knows is still referenced.
func (s *Server) MarkGC(keys []caskey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if _, marked := s.marks[key]; !marked {
			continue
		}
		entry, ok := s.index[key]
		if !ok {
			return errs.NotFound("storageserver: markGC referenced unknown key " + key.String())
		}
		delete(s.marks, key)
		s.garbageSize -= uint64(entry.Size)
	}
	return nil
}

// EndGC closes the GC cycle identified by id: every key still marked is
// tombstoned. id must match the current generation exactly, or the call
// fails with KindGCRace — this is the race-safety property: a second
// beginGC between this cycle's start and its end invalidates it.
func (s *Server) EndGC(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.gcID {
		return errs.GCRace("storageserver: endGC id does not match current generation")
	}

	for key := range s.marks {
		entry, ok := s.index[key]
		if !ok {
			continue
		}

		dataFileIdx := indexfmt.DataFileIndex(entry.Offset)
		s.utilization[dataFileIdx] -= int64(entry.Size)

		tomb := indexfmt.Entry{Offset: indexfmt.WithDeleted(entry.Offset), Size: entry.Size, Key: key}
		buf := tomb.Marshal()
		if _, err := s.indexFile.Write(buf[:]); err != nil {
			return errs.DiskError("storageserver: writing GC tombstone").Wrap(err)
		}
		delete(s.index, key)
	}

	s.gcID = 0
	s.marks = make(map[caskey.Key]struct{})
	s.garbageSize = 0
	s.indexDirty = true
	return nil
}
