// Package storageserver implements the single-node, append-only
// content-addressable store: append-only data files, an append-only index
// log, an in-memory index, online compaction, and mark-and-sweep garbage
// collection, as specified in spec §4.1. Grounded directly on
// _examples/original_source/src/storage-server.cc, translated from a
// single-threaded capnp event loop into a Go struct whose index, GC marks
// and allocation heap are guarded by one mutex. The mutex does not make
// whole calls exclusive: preads, put-stream reads and fsyncs run outside it,
// so several calls can be in progress at once.
package storageserver

import (
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/pkg/asyncio"
	"github.com/mortehu/cantera-cas/pkg/bucketcfg"
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

// Server is a single repository's storage engine.
type Server struct {
	mu sync.Mutex

	dir    string
	l      *zap.Logger
	aio    *asyncio.Service
	closed bool

	indexFile *os.File
	dataFiles [indexfmt.MaxDataFiles]*os.File

	heap        dataFileHeap
	utilization [indexfmt.MaxDataFiles]int64

	index map[caskey.Key]indexfmt.Entry
	marks map[caskey.Key]struct{}

	gcID        uint64
	garbageSize uint64

	indexDirty         bool
	compactingDataFile int // -1 when no compaction is running

	disableRead bool

	config bucketcfg.Config
}

// Option configures a Server at construction time.
type Option func(*Server)

// Logger sets the zap logger used for structured logging of every
// operation, mirroring the teacher's option-pattern logger injection
// (pkg/cafs, pkg/wal).
func Logger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.l = l
		}
	}
}

// AsyncIO overrides the asyncio.Service used for pread/fsync. Mostly for
// tests that want a smaller worker pool.
func AsyncIO(svc *asyncio.Service) Option {
	return func(s *Server) {
		s.aio = svc
	}
}

// DisableRead disables get/list, mirroring the original's kDisableRead
// flag (used by write-only replicas during certain maintenance windows).
func DisableRead() Option {
	return func(s *Server) {
		s.disableRead = true
	}
}

func dataFileName(idx int) string {
	if idx == 0 {
		return "data"
	}
	return fmt.Sprintf("data.%02d", idx)
}

// Open opens (creating if absent) the repository at dir: the index file,
// all 50 data files, replays the index into memory, and loads or creates
// the bucket config.
func Open(dir string, opts ...Option) (*Server, error) {
	s := &Server{
		dir:                dir,
		l:                  zap.NewNop(),
		aio:                asyncio.New(),
		index:              make(map[caskey.Key]indexfmt.Entry),
		marks:              make(map[caskey.Key]struct{}),
		compactingDataFile: -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.DiskError("storageserver: creating repository directory").Wrap(err)
	}

	indexFile, err := os.OpenFile(filepath.Join(dir, "index"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.DiskError("storageserver: opening index").Wrap(err)
	}
	s.indexFile = indexFile

	for i := 0; i < indexfmt.MaxDataFiles; i++ {
		f, err := os.OpenFile(filepath.Join(dir, dataFileName(i)), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errs.DiskError(fmt.Sprintf("storageserver: opening %s", dataFileName(i))).Wrap(err)
		}
		s.dataFiles[i] = f

		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errs.DiskError("storageserver: seeking data file").Wrap(err)
		}
		s.heap = append(s.heap, dataFileEntry{length: size, idx: i})
	}
	heap.Init(&s.heap)

	if err := s.readIndex(); err != nil {
		return nil, err
	}

	cfg, err := s.loadOrCreateConfig()
	if err != nil {
		return nil, err
	}
	s.config = cfg

	return s, nil
}

func (s *Server) loadOrCreateConfig() (bucketcfg.Config, error) {
	path := filepath.Join(s.dir, "config")
	if _, err := os.Stat(path); err == nil {
		return bucketcfg.Load(path)
	} else if !os.IsNotExist(err) {
		return bucketcfg.Config{}, errs.DiskError("storageserver: statting config").Wrap(err)
	}

	total, _, err := s.statfs()
	if err != nil {
		return bucketcfg.Config{}, err
	}
	n := bucketcfg.GenerateBucketCount(total)
	cfg := bucketcfg.Config{Buckets: bucketcfg.Generate(n)}
	if err := bucketcfg.Save(path, cfg); err != nil {
		return bucketcfg.Config{}, errs.DiskError("storageserver: saving config").Wrap(err)
	}
	return cfg, nil
}

// Close releases the repository's file descriptors. It does not stop a
// shared asyncio.Service passed in via the AsyncIO option.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.indexFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, f := range s.dataFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetConfig returns the repository's sorted bucket list.
func (s *Server) GetConfig() bucketcfg.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}
