package rpcserver

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// streamReader adapts a channel of incoming wire.StreamFrame values into
// an io.Reader, feeding storageserver.Put's digest-while-reading TeeReader.
type streamReader struct {
	ch    <-chan wire.StreamFrame
	buf   []byte
	err   error
	nread int64
}

func (r *streamReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		frame, ok := <-r.ch
		if !ok {
			r.err = io.ErrUnexpectedEOF
			continue
		}
		if frame.Err != nil {
			r.err = errors.New(frame.Err.Message)
			continue
		}
		if frame.Done {
			r.err = io.EOF
			continue
		}
		r.buf = frame.Data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	r.nread += int64(n)
	return n, nil
}

func (s *Server) handlePut(ctx context.Context, mux *wire.Mux, req wire.Request) {
	var args wire.PutArgs
	if err := wire.Unmarshal(req.Args, &args); err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: decoding put args").Wrap(err))
		return
	}
	key, err := decodeKey(args.Key)
	if err != nil {
		s.writeErr(mux, req.ID, errs.MalformedInput("rpcserver: put requires a 20-byte key").Wrap(err))
		return
	}

	streamID := atomic.AddUint64(&s.nextStreamID, 1)
	ch := mux.RegisterStream(streamID)
	s.writeResult(mux, req.ID, wire.PutResult{StreamID: streamID})

	sr := &streamReader{ch: ch}
	putErr := s.store.Put(ctx, key, sr, args.Sync)
	mux.ReleaseStream(streamID)

	if putErr != nil {
		s.writeErr(mux, req.ID, putErr)
		return
	}
	s.metrics.AddBytesPut(int(sr.nread))
	s.writeResult(mux, req.ID, wire.PutDoneResult{Key: key[:]})
}
