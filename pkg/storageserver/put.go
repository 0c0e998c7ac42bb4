package storageserver

import (
	"container/heap"
	"context"
	"crypto/sha1" //nolint:gosec // content-addressing digest, not authentication
	"fmt"
	"io"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// Put streams r's bytes into the repository under key. If key already
// exists, r is drained and discarded (at-most-one-copy semantics) and no
// digest check is performed, matching the original's NullStream. If r's
// SHA-1 does not equal key, the put is rejected with KindDigestMismatch
// and no index entry is written — data_model's "no partial state is
// committed" invariant.
func (s *Server) Put(ctx context.Context, key caskey.Key, r io.Reader, sync bool) error {
	s.mu.Lock()
	_, exists := s.index[key]
	if exists {
		if _, marked := s.marks[key]; marked {
			delete(s.marks, key)
			s.garbageSize -= uint64(s.index[key].Size)
		}
	}
	s.mu.Unlock()

	if exists {
		_, err := io.Copy(io.Discard, r)
		return err
	}

	h := sha1.New() //nolint:gosec
	data, err := io.ReadAll(io.TeeReader(r, h))
	if err != nil {
		return errs.DiskError("storageserver: reading put stream").Wrap(err)
	}

	digest, err := caskey.New(h.Sum(nil))
	if err != nil {
		return errs.DiskError("storageserver: computing digest").Wrap(err)
	}
	if digest != key {
		return errs.DigestMismatch(fmt.Sprintf(
			"storageserver: calculated digest %s does not match key %s", digest, key))
	}

	return s.commitPut(ctx, key, data, sync)
}

// commitPut performs the actual append: it is also used directly by
// compaction's DrainDataFile, which already knows the data is valid and
// skips the digest check.
func (s *Server) commitPut(ctx context.Context, key caskey.Key, data []byte, sync bool) error {
	s.mu.Lock()
	if _, exists := s.index[key]; exists {
		s.mu.Unlock()
		return nil
	}

	// Find the shortest data file so every file grows at roughly the same
	// rate over the repository's lifetime.
	entry := heap.Pop(&s.heap).(dataFileEntry)
	idx := entry.idx
	f := s.dataFiles[idx]

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		heap.Push(&s.heap, entry)
		s.mu.Unlock()
		return errs.DiskError("storageserver: seeking data file").Wrap(err)
	}

	if _, err := f.Write(data); err != nil {
		heap.Push(&s.heap, entry)
		s.mu.Unlock()
		return errs.DiskError("storageserver: writing data file").Wrap(err)
	}

	entry.length = offset + int64(len(data))
	heap.Push(&s.heap, entry)
	s.utilization[idx] += int64(len(data))

	packedOffset, err := indexfmt.MakeOffset(idx, uint64(offset), false)
	if err != nil {
		s.mu.Unlock()
		return errs.DiskError("storageserver: packing offset").Wrap(err)
	}

	ie := indexfmt.Entry{Offset: packedOffset, Size: uint32(len(data)), Key: key}
	buf := ie.Marshal()
	if _, err := s.indexFile.Write(buf[:]); err != nil {
		s.mu.Unlock()
		return errs.DiskError("storageserver: writing index record").Wrap(err)
	}
	s.index[key] = ie

	dataFile := s.dataFiles[idx]
	indexFile := s.indexFile
	s.mu.Unlock()

	if !sync {
		return nil
	}
	if err := s.aio.Fsync(ctx, dataFile); err != nil {
		return errs.DiskError("storageserver: fsyncing data file").Wrap(err)
	}
	if err := s.aio.Fsync(ctx, indexFile); err != nil {
		return errs.DiskError("storageserver: fsyncing index").Wrap(err)
	}
	return nil
}
