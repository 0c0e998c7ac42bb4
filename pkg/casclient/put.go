package casclient

import (
	"context"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// Put stores data, returning its textual key. Objects smaller than the
// client's inline threshold never touch the server: the key itself is a
// 'P'-prefixed base64 encoding of data, per spec.md §4.3.
func (c *Client) Put(ctx context.Context, data []byte, sync bool) (string, error) {
	if len(data) < c.inlineThreshold {
		return caskey.Inline{Data: data}.String(), nil
	}

	key := caskey.SumBytes(data)

	stream, err := c.OpenPut(ctx, key, sync)
	if err != nil {
		return "", err
	}
	for off := 0; off < len(data); off += putChunkSize {
		end := off + putChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := stream.WriteChunk(data[off:end]); err != nil {
			return "", err
		}
	}
	return stream.Close()
}

// PutStream is a handle to an in-progress put opened with OpenPut. The
// caller drives it with WriteChunk, one chunk at a time, and finishes with
// Close; unlike Put, a PutStream never needs the whole object in memory —
// only whatever chunk the caller hands it passes through. This is what lets
// pkg/balancer fan a single chunk out to every replica concurrently instead
// of buffering the full object before replicating it, per spec.md §4.5's
// CASObjectStreamMultiplexer.
type PutStream struct {
	mux      *wire.Mux
	respCh   chan wire.Response
	streamID uint64
	id       uint64
}

// OpenPut begins a put of the object named by key and returns a PutStream
// for writing its body in chunks.
func (c *Client) OpenPut(ctx context.Context, key caskey.Key, sync bool) (*PutStream, error) {
	mux, err := c.ensureConn(ctx)
	if err != nil {
		return nil, errs.TransportLost("casclient: connecting to " + c.addr).Wrap(err)
	}

	argBuf, err := wire.Marshal(wire.PutArgs{Key: key[:], Sync: sync})
	if err != nil {
		return nil, errs.MalformedInput("casclient: encoding put args").Wrap(err)
	}

	id := c.newID()
	respCh := mux.RegisterResponse(id)

	if err := mux.WriteRequest(wire.Request{ID: id, Method: wire.MethodPut, Args: argBuf}); err != nil {
		mux.ReleaseResponse(id)
		return nil, errs.TransportLost("casclient: sending put").Wrap(err)
	}

	openResp, ok := <-respCh
	if !ok {
		mux.ReleaseResponse(id)
		return nil, errs.TransportLost("casclient: connection closed opening put stream")
	}
	if openResp.Err != nil {
		mux.ReleaseResponse(id)
		return nil, wireErrToErrs(openResp.Err)
	}
	var putResult wire.PutResult
	if err := wire.Unmarshal(openResp.Result, &putResult); err != nil {
		mux.ReleaseResponse(id)
		return nil, errs.MalformedInput("casclient: decoding put result").Wrap(err)
	}

	return &PutStream{mux: mux, respCh: respCh, streamID: putResult.StreamID, id: id}, nil
}

// WriteChunk fans one chunk of the object's bytes to the backend's stream.
// data must not be modified until WriteChunk returns.
func (p *PutStream) WriteChunk(data []byte) error {
	if err := p.mux.WriteStream(wire.StreamFrame{StreamID: p.streamID, Data: data}); err != nil {
		return errs.TransportLost("casclient: streaming put body").Wrap(err)
	}
	return nil
}

// Close signals end of body, waits for the backend's digest-checked result,
// and returns the final key.
func (p *PutStream) Close() (string, error) {
	defer p.mux.ReleaseResponse(p.id)

	if err := p.mux.WriteStream(wire.StreamFrame{StreamID: p.streamID, Done: true}); err != nil {
		return "", errs.TransportLost("casclient: closing put stream").Wrap(err)
	}

	doneResp, ok := <-p.respCh
	if !ok {
		return "", errs.TransportLost("casclient: connection closed awaiting put result")
	}
	if doneResp.Err != nil {
		return "", wireErrToErrs(doneResp.Err)
	}
	var doneResult wire.PutDoneResult
	if err := wire.Unmarshal(doneResp.Result, &doneResult); err != nil {
		return "", errs.MalformedInput("casclient: decoding put done result").Wrap(err)
	}
	finalKey, err := caskey.New(doneResult.Key)
	if err != nil {
		return "", errs.MalformedInput("casclient: server returned malformed key").Wrap(err)
	}
	return finalKey.String(), nil
}

// Abort drops the stream without waiting for a result, for callers that hit
// an error mid-write (e.g. one of several fan-out replicas) and need to
// release the response channel without blocking on a reply that may never
// come for this half-written stream.
func (p *PutStream) Abort() {
	p.mux.ReleaseResponse(p.id)
}

