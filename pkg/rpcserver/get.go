package rpcserver

import (
	"context"
	"sync/atomic"

	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// streamWriter adapts an outgoing io.Writer into a sequence of
// wire.StreamFrame writes on the Mux, feeding storageserver.Get's
// chunked pread loop.
type streamWriter struct {
	mux      *wire.Mux
	streamID uint64
	nwritten int64
}

func (w *streamWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	if err := w.mux.WriteStream(wire.StreamFrame{StreamID: w.streamID, Data: data}); err != nil {
		return 0, err
	}
	w.nwritten += int64(len(p))
	return len(p), nil
}

func (s *Server) handleGet(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.GetArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding get args").Wrap(err))
		return
	}
	key, err := decodeKey(args.Key)
	if err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: get requires a 20-byte key").Wrap(err))
		return
	}

	objectSize, err := s.store.Stat(key)
	if err != nil {
		s.writeErr(mux, req.ID, err)
		return
	}

	offset := args.Offset
	size := args.Size
	if offset > objectSize {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: get offset beyond object size"))
		return
	}
	if size == 0 || offset+size > objectSize {
		size = objectSize - offset
	}

	streamID := atomic.AddUint64(&s.nextStreamID, 1)
	s.writeResult(mux, req.ID, wire.GetResult{StreamID: streamID, ExpectSize: size})

	w := &streamWriter{mux: mux, streamID: streamID}
	n, getErr := s.store.Get(ctx, key, offset, size, w)
	if getErr != nil {
		_ = mux.WriteStream(wire.StreamFrame{StreamID: streamID, Err: toWireErr(getErr)})
		return
	}
	s.metrics.AddBytesGet(int(n))
	_ = mux.WriteStream(wire.StreamFrame{StreamID: streamID, Done: true})
}
