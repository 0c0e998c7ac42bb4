package rpcserver

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/pkg/balancer"
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/dlogger"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/metrics"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// BalancerServer exposes a *balancer.Server over the same wire protocol as
// Server, per spec.md §4.5's claim that BalancerServer answers the same
// external interface as StorageServer. It is a sibling dispatcher rather
// than a shared one, since the balancer's List works over plain keys with
// no per-entry offset/size the way a single backend's index does.
type BalancerServer struct {
	bal          *balancer.Server
	log          *zap.Logger
	metrics      *metrics.Metrics
	nextStreamID uint64

	cursorsMu  sync.Mutex
	cursors    map[uint64]*balancerCursor
	nextCursor uint64
}

type balancerCursor struct {
	keys []caskey.Key
	pos  int
}

// BalancerOption configures an optional aspect of a BalancerServer.
type BalancerOption func(*BalancerServer)

// WithBalancerMetrics records op counts, latencies and error kinds on m.
func WithBalancerMetrics(m *metrics.Metrics) BalancerOption {
	return func(s *BalancerServer) { s.metrics = m }
}

// NewBalancerServer wraps bal for RPC dispatch.
func NewBalancerServer(bal *balancer.Server, log *zap.Logger, opts ...BalancerOption) *BalancerServer {
	if log == nil {
		log = dlogger.MustGetLogger(dlogger.LogLevelNone)
	}
	s := &BalancerServer{bal: bal, log: log, cursors: make(map[uint64]*balancerCursor)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections on l until ctx is canceled or l.Accept fails.
func (s *BalancerServer) Serve(ctx context.Context, l net.Listener) error {
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

func (s *BalancerServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	mux := wire.NewMux(conn)
	mux.OnRequest(func(req wire.Request) {
		s.dispatch(ctx, mux, req)
	})
	if err := mux.Run(conn); err != nil && err != io.EOF {
		s.log.Debug("rpcserver: balancer connection closed", zap.Error(err))
	}
}

func (s *BalancerServer) dispatch(ctx context.Context, mux *wire.Mux, req wire.Request) {
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
		s.handleRemove(ctx, mux, req)
	case wire.MethodList:
		s.handleList(ctx, mux, req)
	case wire.MethodListRead:
		s.handleListRead(mux, req)
	case wire.MethodCapacity:
		s.handleCapacity(ctx, mux, req)
	case wire.MethodCompact:
		s.handleCompact(ctx, mux, req)
	case wire.MethodBeginGC:
		s.handleBeginGC(ctx, mux, req)
	case wire.MethodMarkGC:
		s.handleMarkGC(ctx, mux, req)
	case wire.MethodEndGC:
		s.handleEndGC(ctx, mux, req)
	case wire.MethodGetConfig:
		s.handleGetConfig(ctx, mux, req)
	default:
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: unknown method "+req.Method))
	}
}

func (s *BalancerServer) writeErr(mux *wire.Mux, id uint64, err error) {
	s.metrics.ObserveOp("error", 0, errs.KindOf(err).String())
	_ = mux.WriteResponse(wire.Response{ID: id, Err: toWireErr(err)})
}

func (s *BalancerServer) writeResult(mux *wire.Mux, id uint64, result interface{}) {
	b, err := wire.Marshal(result)
	if err != nil {
		s.writeErr(mux, id, errs.DiskError("rpcserver: marshaling result").Wrap(err))
		return
	}
	_ = mux.WriteResponse(wire.Response{ID: id, Result: b})
}

func (s *BalancerServer) handlePut(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.PutArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding put args").Wrap(err))
		return
	}
	key, err := decodeKey(args.Key)
	if err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: balancer put requires a 20-byte key").Wrap(err))
		return
	}

	streamID := atomic.AddUint64(&s.nextStreamID, 1)
	ch := mux.RegisterStream(streamID)
	s.writeResult(mux, req.ID, wire.PutResult{StreamID: streamID})

	sr := &streamReader{ch: ch}
	putErr := s.bal.Put(ctx, key, sr, args.Sync)
	mux.ReleaseStream(streamID)

	if putErr != nil {
		s.writeErr(mux, req.ID, putErr)
		return
	}
	s.metrics.AddBytesPut(int(sr.nread))
	s.writeResult(mux, req.ID, wire.PutDoneResult{Key: key[:]})
}

func (s *BalancerServer) handleGet(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.GetArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding get args").Wrap(err))
		return
	}
	key, err := decodeKey(args.Key)
	if err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: balancer get requires a 20-byte key").Wrap(err))
		return
	}

	streamID := atomic.AddUint64(&s.nextStreamID, 1)
	s.writeResult(mux, req.ID, wire.GetResult{StreamID: streamID})

	w := &streamWriter{mux: mux, streamID: streamID}
	if err := s.bal.Get(ctx, key, args.Offset, args.Size, w); err != nil {
		_ = mux.WriteStream(wire.StreamFrame{StreamID: streamID, Err: toWireErr(err)})
		return
	}
	s.metrics.AddBytesGet(int(w.nwritten))
	_ = mux.WriteStream(wire.StreamFrame{StreamID: streamID, Done: true})
}

func (s *BalancerServer) handleRemove(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.RemoveArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding remove args").Wrap(err))
		return
	}
	key, err := decodeKey(args.Key)
	if err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: remove requires a 20-byte key").Wrap(err))
		return
	}
	if err := s.bal.Remove(ctx, key); err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *BalancerServer) handleList(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.ListArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding list args").Wrap(err))
		return
	}
	mode := casclient.ListDefault
	if args.Mode == wire.ListModeGarbage {
		mode = casclient.ListGarbage
	}
	maxSize := args.MaxSize
	if maxSize == 0 {
		maxSize = 1<<64 - 1
	}

	var keys []caskey.Key
	err := s.bal.List(ctx, mode, args.MinSize, maxSize, func(k caskey.Key) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}

	id := atomic.AddUint64(&s.nextCursor, 1)
	s.cursorsMu.Lock()
	s.cursors[id] = &balancerCursor{keys: keys}
	s.cursorsMu.Unlock()

	s.writeResult(mux, req.ID, wire.ListResult{CursorID: id})
}

func (s *BalancerServer) handleListRead(mux *wire.Mux, req wire.Request) {
	var args wire.ListReadArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding listRead args").Wrap(err))
		return
	}

	s.cursorsMu.Lock()
	c, ok := s.cursors[args.CursorID]
	if !ok {
		s.cursorsMu.Unlock()
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: unknown list cursor"))
		return
	}
	end := c.pos + int(args.Count)
	if end > len(c.keys) {
		end = len(c.keys)
	}
	page := c.keys[c.pos:end]
	c.pos = end
	if len(page) == 0 {
		delete(s.cursors, args.CursorID)
	}
	s.cursorsMu.Unlock()

	out := make([][]byte, len(page))
	for i, k := range page {
		kk := k
		out[i] = kk[:]
	}
	s.writeResult(mux, req.ID, wire.ListReadResult{Keys: out})
}

func (s *BalancerServer) handleCapacity(ctx context.Context, mux *wire.Mux, req wire.Request) {
	capacity, err := s.bal.Capacity(ctx)
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.writeResult(mux, req.ID, wire.CapacityResult{
		Total:       capacity.Total,
		Available:   capacity.Available,
		Unreclaimed: capacity.Unreclaimed,
		Garbage:     capacity.Garbage,
	})
}

func (s *BalancerServer) handleCompact(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.CompactArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding compact args").Wrap(err))
		return
	}
	if err := s.bal.Compact(ctx, args.Sync); err != nil {
		s.writeErr(mux, req.ID, err)
		s.metrics.ObserveCompaction("error")
		return
	}
	s.metrics.ObserveCompaction("ok")
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *BalancerServer) handleBeginGC(ctx context.Context, mux *wire.Mux, req wire.Request) {
	id, err := s.bal.BeginGC(ctx)
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.metrics.SetGCGeneration(id)
	s.writeResult(mux, req.ID, wire.BeginGCResult{ID: id})
}

func (s *BalancerServer) handleMarkGC(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.MarkGCArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding markGC args").Wrap(err))
		return
	}
	keys := make([]caskey.Key, 0, len(args.Keys))
	for _, b := range args.Keys {
		k, err := decodeKey(b)
		if err != nil {
			s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: markGC key decode").Wrap(err))
			return
		}
		keys = append(keys, k)
	}
	if err := s.bal.MarkGC(ctx, keys); err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *BalancerServer) handleEndGC(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.EndGCArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding endGC args").Wrap(err))
		return
	}
	if err := s.bal.EndGC(ctx, args.ID); err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	s.metrics.SetGCGeneration(0)
	s.writeResult(mux, req.ID, struct{}{})
}

func (s *BalancerServer) handleGetConfig(ctx context.Context, mux *wire.Mux, req wire.Request) {
	buckets, err := s.bal.GetConfig(ctx)
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}
	out := make([][]byte, len(buckets))
	for i, b := range buckets {
		bb := b
		out[i] = bb[:]
	}
	s.writeResult(mux, req.ID, wire.GetConfigResult{Buckets: out})
}
