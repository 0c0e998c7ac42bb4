package storageserver

import (
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// Remove appends a tombstone for key if it exists. Removing an unknown key
// is a silent no-op, matching storage-server.cc's remove.
func (s *Server) Remove(key caskey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[key]
	if !ok {
		return nil
	}

	dataFileIdx := indexfmt.DataFileIndex(entry.Offset)
	s.utilization[dataFileIdx] -= int64(entry.Size)

	if _, marked := s.marks[key]; marked {
		delete(s.marks, key)
		s.garbageSize -= uint64(entry.Size)
	}

	tomb := indexfmt.Entry{Offset: indexfmt.WithDeleted(entry.Offset), Size: entry.Size, Key: key}
	buf := tomb.Marshal()
	if _, err := s.indexFile.Write(buf[:]); err != nil {
		return errs.DiskError("storageserver: writing tombstone").Wrap(err)
	}

	delete(s.index, key)
	s.indexDirty = true
	return nil
}
