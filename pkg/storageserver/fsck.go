package storageserver

import (
	"context"
	"io"

	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// ReadEntryForVerification streams entry's bytes to w by its own recorded
// offset and size, without touching the live index or any GC mark. It
// exists for pkg/fsck, which must not have the side effect Get has of
// clearing a GC mark on read — a checker run must never perturb the
// repository it's inspecting.
func (s *Server) ReadEntryForVerification(ctx context.Context, entry indexfmt.Entry, w io.Writer) (int64, error) {
	s.mu.Lock()
	dataFileIdx := indexfmt.DataFileIndex(entry.Offset)
	if dataFileIdx < 0 || dataFileIdx >= len(s.dataFiles) {
		s.mu.Unlock()
		return 0, errs.DiskError("storageserver: entry references out-of-range data file")
	}
	f := s.dataFiles[dataFileIdx]
	s.mu.Unlock()

	objectOffset := indexfmt.ByteOffset(entry.Offset)
	objectSize := uint64(entry.Size)

	var written int64
	start := objectOffset
	end := objectOffset + objectSize
	for start < end {
		chunkLen := end - start
		if chunkLen > getChunkSize {
			chunkLen = getChunkSize
		}
		buf := make([]byte, chunkLen)
		n, err := s.aio.Pread(ctx, f, buf, int64(start))
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return written, err
		}
		written += int64(n)
		start += uint64(n)
	}
	return written, nil
}
