// Package rpcserver binds pkg/wire's framing to a pkg/storageserver.Server,
// exposing every storage-server operation over a net.Listener. It realizes
// the capability-call dispatch loop described in the external interface as
// one handler goroutine per request, relying on storageserver.Server's own
// mutex for serialization rather than a single-threaded event loop.
package rpcserver

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/dlogger"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
	"github.com/mortehu/cantera-cas/pkg/metrics"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// Server dispatches wire.Request envelopes against a storage-server
// instance and streams put/get bodies over pkg/wire's Mux.
type Server struct {
	store        *storageserver.Server
	log          *zap.Logger
	metrics      *metrics.Metrics
	nextStreamID uint64

	cursorsMu  sync.Mutex
	cursors    map[uint64]*cursor
	nextCursor uint64
}

type cursor struct {
	entries []indexfmt.Entry
	pos     int
}

// Option configures an optional aspect of a Server at construction time.
type Option func(*Server)

// WithMetrics records op counts, latencies and error kinds on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New wraps store for RPC dispatch.
func New(store *storageserver.Server, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = dlogger.MustGetLogger("none")
	}
	s := &Server{store: store, log: log, cursors: make(map[uint64]*cursor)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections on l until ctx is canceled or l.Accept fails.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	mux := wire.NewMux(conn)
	mux.OnRequest(func(req wire.Request) {
		s.dispatch(ctx, mux, req)
	})
	if err := mux.Run(conn); err != nil && err != io.EOF {
		s.log.Debug("rpcserver: connection closed", zap.Error(err))
	}
}

func (s *Server) dispatch(ctx context.Context, mux *wire.Mux, req wire.Request) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOp(req.Method, time.Since(start).Seconds(), "")
	}()

	switch req.Method {
	case wire.MethodPut:
		s.handlePut(ctx, mux, req)
	case wire.MethodGet:
		s.handleGet(ctx, mux, req)
	case wire.MethodRemove:
		s.handleRemove(mux, req)
	case wire.MethodList:
		s.handleList(mux, req)
	case wire.MethodListRead:
		s.handleListRead(mux, req)
	case wire.MethodCapacity:
		s.handleCapacity(mux, req)
	case wire.MethodCompact:
		s.handleCompact(ctx, mux, req)
	case wire.MethodBeginGC:
		s.handleBeginGC(mux, req)
	case wire.MethodMarkGC:
		s.handleMarkGC(mux, req)
	case wire.MethodEndGC:
		s.handleEndGC(mux, req)
	case wire.MethodGetConfig:
		s.handleGetConfig(mux, req)
	default:
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: unknown method "+req.Method))
	}
}

func (s *Server) writeErr(mux *wire.Mux, id uint64, err error) {
	s.metrics.ObserveOp("error", 0, errs.KindOf(err).String())
	_ = mux.WriteResponse(wire.Response{ID: id, Err: toWireErr(err)})
}

func (s *Server) writeResult(mux *wire.Mux, id uint64, result interface{}) {
	b, err := wire.Marshal(result)
	if err != nil {
		s.writeErr(mux, id, errs.DiskError("rpcserver: marshaling result").Wrap(err))
		return
	}
	_ = mux.WriteResponse(wire.Response{ID: id, Result: b})
}

func toWireErr(err error) *wire.Error {
	if err == nil {
		return nil
	}
	return &wire.Error{Kind: errs.KindOf(err).String(), Message: err.Error()}
}

func decodeKey(b []byte) (caskey.Key, error) {
	return caskey.New(b)
}
