package storageserver

import (
	"context"
	"io"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// getChunkSize is the default chunk size for streaming a get, per spec §4.1.
const getChunkSize = 8 * 1024 * 1024

// Get writes size bytes of key's object starting at offset to w, clamping
// size to the object's remaining length. If key is currently GC-marked,
// the mark is removed (spec §9's Open Question resolution: a read during
// an open GC window protects the key from a concurrent sweep). Returns the
// number of bytes actually written.
func (s *Server) Get(ctx context.Context, key caskey.Key, offset, size uint64, w io.Writer) (int64, error) {
	if s.disableRead {
		return 0, errs.MalformedInput("storageserver: reads are disabled on this replica")
	}

	s.mu.Lock()
	entry, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return 0, errs.NotFound("storageserver: object " + key.String() + " does not exist")
	}
	if _, marked := s.marks[key]; marked {
		delete(s.marks, key)
		s.garbageSize -= uint64(entry.Size)
	}

	dataFileIdx := indexfmt.DataFileIndex(entry.Offset)
	objectOffset := indexfmt.ByteOffset(entry.Offset)
	objectSize := uint64(entry.Size)
	f := s.dataFiles[dataFileIdx]
	s.mu.Unlock()

	if offset > objectSize {
		return 0, errs.MalformedInput("storageserver: read offset beyond object size")
	}
	if offset+size > objectSize || size == 0 {
		size = objectSize - offset
	}

	var written int64
	start := objectOffset + offset
	end := objectOffset + offset + size

	for start < end {
		chunkLen := end - start
		if chunkLen > getChunkSize {
			chunkLen = getChunkSize
		}
		buf := make([]byte, chunkLen)

		n, err := s.aio.Pread(ctx, f, buf, int64(start))
		if err != nil {
			return written, errs.DiskError("storageserver: pread").Wrap(err)
		}
		if n == 0 {
			break
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return written, errs.DiskError("storageserver: writing get stream").Wrap(err)
		}
		written += int64(n)
		start += uint64(n)
	}
	return written, nil
}
