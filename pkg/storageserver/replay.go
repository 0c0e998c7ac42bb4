package storageserver

import (
	"io"

	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

const replayBatchEntries = 1024

// readIndex replays the index log sequentially at startup, reconstructing
// the in-memory index and per-data-file utilization. Grounded on
// storage-server.cc's ReadIndex: a later record for a key shadows an
// earlier one; a tombstone removes it and marks the index dirty (a
// candidate for future index compaction).
func (s *Server) readIndex() error {
	size, err := s.indexFile.Seek(0, io.SeekEnd)
	if err != nil {
		return errs.DiskError("storageserver: seeking index").Wrap(err)
	}

	if rem := size % indexfmt.EntrySize; rem != 0 {
		size -= rem
		if err := s.indexFile.Truncate(size); err != nil {
			return errs.DiskError("storageserver: truncating partial index record").Wrap(err)
		}
	}
	if size == 0 {
		return nil
	}

	entryCount := size / indexfmt.EntrySize
	buf := make([]byte, replayBatchEntries*indexfmt.EntrySize)

	for i := int64(0); i < entryCount; i += replayBatchEntries {
		count := replayBatchEntries
		if remaining := entryCount - i; remaining < replayBatchEntries {
			count = int(remaining)
		}
		chunk := buf[:count*indexfmt.EntrySize]
		if _, err := s.indexFile.ReadAt(chunk, i*indexfmt.EntrySize); err != nil {
			return errs.DiskError("storageserver: reading index").Wrap(err)
		}

		for j := 0; j < count; j++ {
			rec := chunk[j*indexfmt.EntrySize : (j+1)*indexfmt.EntrySize]
			entry, err := indexfmt.Unmarshal(rec)
			if err != nil {
				return errs.DiskError("storageserver: decoding index record").Wrap(err)
			}
			s.applyReplayedEntry(entry)
		}
	}
	return nil
}

func (s *Server) applyReplayedEntry(entry indexfmt.Entry) {
	if prior, ok := s.index[entry.Key]; ok {
		s.utilization[indexfmt.DataFileIndex(prior.Offset)] -= int64(prior.Size)
		delete(s.index, entry.Key)
	}

	if !indexfmt.IsDeleted(entry.Offset) {
		s.utilization[indexfmt.DataFileIndex(entry.Offset)] += int64(entry.Size)
		s.index[entry.Key] = entry
	} else {
		s.indexDirty = true
	}
}
