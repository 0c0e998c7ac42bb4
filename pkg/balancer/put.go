package balancer

import (
	"context"
	"io"
	"sync"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/errs"
)

// putChunkSize bounds how much of r is held in memory at once while
// fanning a put out to several replicas, matching casclient's own chunk
// size so a fan-out put and a single-backend put move bytes in the same
// increments.
const putChunkSize = 1 << 20

// Put resolves the write-replica set for key and fans the bytes read from r
// out to every replica as they arrive, per spec.md §4.5's
// CASObjectStreamMultiplexer: each chunk is pinned in memory only for the
// duration of the concurrent writes that consume it, so a multi-gigabyte
// put never requires buffering the whole object at the balancer tier. With
// one backend it performs what spec.md §4.5 calls a tail call: chunks go
// straight to that backend with no fan-out bookkeeping at all.
//
// key must be the full 20-byte digest of r's bytes — the 0-byte "server
// computes the key" form spec.md §4.5 also allows is not implemented; see
// DESIGN.md's Open Questions section. Each backend independently verifies
// the digest as its stream closes (pkg/storageserver.Put), so the
// multiplexer itself does not re-hash the body before replicating it.
func (s *Server) Put(ctx context.Context, key caskey.Key, r io.Reader, sync bool) error {
	backends, err := s.info.GetWriteBackendsForKey(key, s.replication)
	if err != nil {
		return err
	}

	streams := make([]*casclient.PutStream, len(backends))
	for i, b := range backends {
		stream, err := backendClient(b).OpenPut(ctx, key, sync)
		if err != nil {
			abortAll(streams[:i])
			return err
		}
		streams[i] = stream
	}

	return copyChunks(r, streams)
}

// copyChunks reads r in putChunkSize increments, fanning each chunk out to
// every stream concurrently before reading the next one, then closes every
// stream and returns the first error encountered.
func copyChunks(r io.Reader, streams []*casclient.PutStream) error {
	buf := make([]byte, putChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := writeChunkToAll(streams, buf[:n]); err != nil {
				abortAll(streams)
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			abortAll(streams)
			return errs.DiskError("balancer: reading put stream").Wrap(readErr)
		}
	}

	var firstErr error
	for _, s := range streams {
		if _, err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeChunkToAll fans one pinned chunk out to every stream concurrently
// and returns the first error, once every write has settled — the same
// join-of-promises semantics spec.md §9's Design Notes describe for the
// multiplexer's write() call, grounded on this package's backend fanOut
// helper.
func writeChunkToAll(streams []*casclient.PutStream, chunk []byte) error {
	if len(streams) == 1 {
		return streams[0].WriteChunk(chunk)
	}

	errC := make(chan error, len(streams))
	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s *casclient.PutStream) {
			defer wg.Done()
			if err := s.WriteChunk(chunk); err != nil {
				errC <- err
			}
		}(s)
	}
	wg.Wait()
	select {
	case err := <-errC:
		return err
	default:
		return nil
	}
}

func abortAll(streams []*casclient.PutStream) {
	for _, s := range streams {
		if s != nil {
			s.Abort()
		}
	}
}
