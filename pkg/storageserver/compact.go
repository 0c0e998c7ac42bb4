package storageserver

import (
	"container/heap"
	"context"
	"os"
	"path/filepath"

	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// Compact runs one online compaction pass. If a compaction is already in
// flight, it is a no-op. It picks the data file with the greatest
// unreclaimed space (physical length minus live utilization); if every
// data file is fully utilized, it instead rewrites the index file,
// dropping tombstoned records. Grounded on storage-server.cc's compact,
// CompactIndexFile, and DrainDataFile.
func (s *Server) Compact(ctx context.Context, sync bool) error {
	s.mu.Lock()
	if s.compactingDataFile >= 0 {
		s.mu.Unlock()
		return nil
	}

	unreclaimed := s.unreclaimedSpacePerFile()
	var maxUnreclaimed int64
	var dataFileIdx int
	for i, u := range unreclaimed {
		if u > maxUnreclaimed {
			maxUnreclaimed = u
			dataFileIdx = i
		}
	}

	if maxUnreclaimed == 0 {
		s.mu.Unlock()
		return s.compactIndexFile(sync)
	}

	s.compactingDataFile = dataFileIdx

	// Remove the file being drained from the allocation heap so concurrent
	// puts cannot target it while compaction is running.
	removed, ok := removeDataFileFromHeap(&s.heap, dataFileIdx)
	if !ok {
		s.compactingDataFile = -1
		s.mu.Unlock()
		return errs.DiskError("storageserver: compact: data file missing from heap")
	}
	s.utilization[dataFileIdx] = 0

	var moves []indexfmt.Entry
	var keepPrefix uint64
	for _, e := range s.index {
		if indexfmt.DataFileIndex(e.Offset) != dataFileIdx {
			continue
		}
		if indexfmt.ByteOffset(e.Offset) == keepPrefix {
			keepPrefix += uint64(e.Size)
			continue
		}
		moves = append(moves, e)
	}
	s.mu.Unlock()

	if err := s.drainDataFile(ctx, dataFileIdx, moves); err != nil {
		s.mu.Lock()
		s.compactingDataFile = -1
		heap.Push(&s.heap, removed)
		s.mu.Unlock()
		return err
	}

	if sync {
		if err := s.fsyncAllExcept(ctx, dataFileIdx); err != nil {
			s.mu.Lock()
			s.compactingDataFile = -1
			heap.Push(&s.heap, removed)
			s.mu.Unlock()
			return err
		}
	}

	s.mu.Lock()
	if err := s.dataFiles[dataFileIdx].Truncate(int64(keepPrefix)); err != nil {
		s.compactingDataFile = -1
		heap.Push(&s.heap, removed)
		s.mu.Unlock()
		return errs.DiskError("storageserver: truncating drained data file").Wrap(err)
	}
	heap.Push(&s.heap, dataFileEntry{length: int64(keepPrefix), idx: dataFileIdx})
	s.utilization[dataFileIdx] = int64(keepPrefix)
	s.compactingDataFile = -1
	s.mu.Unlock()

	return nil
}

// drainDataFile streams each moved entry's bytes out via a pread and
// re-Puts them (which routes to any file currently in the heap — never
// the file being drained, since it was removed before this loop starts).
func (s *Server) drainDataFile(ctx context.Context, dataFileIdx int, moves []indexfmt.Entry) error {
	for _, move := range moves {
		s.mu.Lock()
		current, ok := s.index[move.Key]
		if !ok || current.Offset != move.Offset || current.Size != move.Size {
			// The entry was removed or rewritten concurrently; nothing to move.
			s.mu.Unlock()
			continue
		}
		delete(s.index, move.Key)
		f := s.dataFiles[dataFileIdx]
		s.mu.Unlock()

		buf := make([]byte, move.Size)
		if _, err := s.aio.Pread(ctx, f, buf, int64(indexfmt.ByteOffset(move.Offset))); err != nil {
			return errs.DiskError("storageserver: compact: pread").Wrap(err)
		}

		if err := s.commitPut(ctx, move.Key, buf, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) fsyncAllExcept(ctx context.Context, excludeDataFileIdx int) error {
	for i, f := range s.dataFiles {
		if i == excludeDataFileIdx {
			continue
		}
		if err := s.aio.Fsync(ctx, f); err != nil {
			return errs.DiskError("storageserver: fsyncing data file during compact").Wrap(err)
		}
	}
	return s.aio.Fsync(ctx, s.indexFile)
}

// compactIndexFile rewrites the index into a fresh temp file containing
// only live entries, then atomically renames it over the original —
// grounded on storage-server.cc's CompactIndexFile and on the
// atomic-rename-via-staging pattern in localfs stores.
func (s *Server) compactIndexFile(sync bool) error {
	s.mu.Lock()
	if !s.indexDirty {
		s.mu.Unlock()
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, "index.compact.*")
	if err != nil {
		s.mu.Unlock()
		return errs.DiskError("storageserver: creating temp index").Wrap(err)
	}
	tmpPath := tmp.Name()

	for _, e := range s.index {
		buf := e.Marshal()
		if _, err := tmp.Write(buf[:]); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			s.mu.Unlock()
			return errs.DiskError("storageserver: writing compacted index").Wrap(err)
		}
	}

	if sync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			s.mu.Unlock()
			return errs.DiskError("storageserver: fsyncing compacted index").Wrap(err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		s.mu.Unlock()
		return errs.DiskError("storageserver: closing compacted index").Wrap(err)
	}

	finalPath := filepath.Join(s.dir, "index")
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		s.mu.Unlock()
		return errs.DiskError("storageserver: renaming compacted index").Wrap(err)
	}

	newIndexFile, err := os.OpenFile(finalPath, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		s.mu.Unlock()
		return errs.DiskError("storageserver: reopening compacted index").Wrap(err)
	}
	s.indexFile.Close()
	s.indexFile = newIndexFile
	s.indexDirty = false
	s.mu.Unlock()
	return nil
}
