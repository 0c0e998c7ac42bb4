// Package wire implements the concrete RPC substrate this module uses in
// place of the out-of-scope capability transport and IDL compiler named in
// the specification: a length-prefixed framing of msgpack-encoded envelopes
// over net.Conn, using github.com/ugorji/go/codec (no code generation
// required, unlike gRPC/protobuf).
//
// Every CAS method is one Request/Response pair. Streaming arguments
// (ByteStream.write/done/expectSize) are represented as a sequence of
// StreamFrame values sharing a StreamID, mirroring the "stream of write
// calls then done" shape of the capability IDL.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// MaxFrameSize bounds a single frame to guard against a corrupt or hostile
// peer driving unbounded allocation.
const MaxFrameSize = 64 * 1024 * 1024

var handle = &codec.MsgpackHandle{}

// Method names, one per CAS operation in the external interface.
const (
	MethodPut       = "put"
	MethodGet       = "get"
	MethodRemove    = "remove"
	MethodList      = "list"
	MethodListRead  = "listRead"
	MethodCapacity  = "capacity"
	MethodCompact   = "compact"
	MethodBeginGC   = "beginGC"
	MethodMarkGC    = "markGC"
	MethodEndGC     = "endGC"
	MethodGetConfig = "getConfig"
)

// Request is the envelope carrying one RPC invocation.
type Request struct {
	ID     uint64
	Method string
	Args   []byte // msgpack-encoded method-specific argument struct
}

// Error classifies an RPC failure by the same Kind taxonomy as pkg/errs,
// without requiring the client to depend on pkg/errs's Go type.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Response is the envelope carrying one RPC's result.
type Response struct {
	ID     uint64
	Err    *Error
	Result []byte // msgpack-encoded method-specific result struct, absent on error
}

// StreamFrame carries one chunk of a streamed put/get body.
type StreamFrame struct {
	StreamID uint64
	Data     []byte
	Done     bool   // true on the terminal frame; Data is empty
	Err      *Error // set instead of Done on a failed stream
}

// Envelope kinds, tagging which of Envelope's three payload fields is set.
const (
	EnvelopeRequest  = "req"
	EnvelopeResponse = "resp"
	EnvelopeStream   = "stream"
)

// Envelope multiplexes Request, Response, and StreamFrame values over a
// single net.Conn: a connection carries a sequence of Envelopes rather than
// raw Request/Response/StreamFrame frames, so a server can interleave a
// put's StreamFrames with unrelated requests from the same client.
type Envelope struct {
	Kind     string
	Request  *Request
	Response *Response
	Stream   *StreamFrame
}

// WriteRequest, WriteResponse, and WriteStream wrap v in an Envelope before
// writing it, for use over a connection shared by rpcserver and casclient.
func WriteRequest(w io.Writer, r Request) error  { return WriteFrame(w, Envelope{Kind: EnvelopeRequest, Request: &r}) }
func WriteResponse(w io.Writer, r Response) error { return WriteFrame(w, Envelope{Kind: EnvelopeResponse, Response: &r}) }
func WriteStream(w io.Writer, s StreamFrame) error { return WriteFrame(w, Envelope{Kind: EnvelopeStream, Stream: &s}) }

// ReadEnvelope reads one Envelope frame.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var e Envelope
	if err := ReadFrame(r, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Marshal encodes v (any of Request, Response, StreamFrame, or a
// method-specific argument/result struct) into msgpack bytes.
func Marshal(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// Unmarshal decodes msgpack bytes produced by Marshal into v.
func Unmarshal(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, handle)
	return dec.Decode(v)
}

// WriteFrame writes v to w as a 4-byte big-endian length prefix followed by
// its msgpack encoding.
func WriteFrame(w io.Writer, v interface{}) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	if len(b) > MaxFrameSize {
		return fmt.Errorf("wire: frame of %d bytes exceeds MaxFrameSize", len(b))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame reads one length-prefixed msgpack frame from r into v.
func ReadFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return fmt.Errorf("wire: peer announced frame of %d bytes, exceeds MaxFrameSize", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return Unmarshal(buf, v)
}
