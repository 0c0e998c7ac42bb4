package casclient

import (
	"context"
	"io"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// Get decodes key (any of the hex, G-, or P- textual forms) and writes the
// requested byte range to w. A 'P'-key is served entirely client-side, per
// spec.md §4.3, and never reaches the server.
func (c *Client) Get(ctx context.Context, key string, offset, size uint64, w io.Writer) error {
	if caskey.IsInline(key) {
		data, err := caskey.ParseInline(key)
		if err != nil {
			return errs.MalformedInput("casclient: decoding inline key").Wrap(err)
		}
		if offset > uint64(len(data)) {
			return errs.MalformedInput("casclient: offset beyond inline object size")
		}
		end := uint64(len(data))
		if size != 0 && offset+size < end {
			end = offset + size
		}
		_, err = w.Write(data[offset:end])
		return err
	}

	parsedKey, err := caskey.Parse(key)
	if err != nil {
		return errs.MalformedInput("casclient: decoding key").Wrap(err)
	}

	mux, err := c.ensureConn(ctx)
	if err != nil {
		return errs.TransportLost("casclient: connecting to " + c.addr).Wrap(err)
	}

	argBuf, err := wire.Marshal(wire.GetArgs{Key: parsedKey[:], Offset: offset, Size: size})
	if err != nil {
		return errs.MalformedInput("casclient: encoding get args").Wrap(err)
	}

	id := c.newID()
	respCh := mux.RegisterResponse(id)
	defer mux.ReleaseResponse(id)

	if err := mux.WriteRequest(wire.Request{ID: id, Method: wire.MethodGet, Args: argBuf}); err != nil {
		return errs.TransportLost("casclient: sending get").Wrap(err)
	}

	resp, ok := <-respCh
	if !ok {
		return errs.TransportLost("casclient: connection closed opening get stream")
	}
	if resp.Err != nil {
		return wireErrToErrs(resp.Err)
	}
	var getResult wire.GetResult
	if err := wire.Unmarshal(resp.Result, &getResult); err != nil {
		return errs.MalformedInput("casclient: decoding get result").Wrap(err)
	}

	streamCh := mux.RegisterStream(getResult.StreamID)
	defer mux.ReleaseStream(getResult.StreamID)

	for {
		frame, ok := <-streamCh
		if !ok {
			return errs.TransportLost("casclient: connection closed mid-get")
		}
		if frame.Err != nil {
			return wireErrToErrs(frame.Err)
		}
		if frame.Done {
			return nil
		}
		if _, err := w.Write(frame.Data); err != nil {
			return err
		}
	}
}
