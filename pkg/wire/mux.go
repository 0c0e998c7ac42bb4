package wire

import (
	"io"
	"sync"
)

// Mux multiplexes Envelopes over one net.Conn-shaped connection: incoming
// Requests are dispatched to a single handler, incoming Responses are
// routed to the channel registered for their ID, and incoming StreamFrames
// are routed to the channel registered for their StreamID. Both
// rpcserver and casclient embed a Mux per connection — a put's body frames
// and an unrelated request can interleave on the same wire.
type Mux struct {
	w io.Writer

	writeMu sync.Mutex

	mu        sync.Mutex
	responses map[uint64]chan Response
	streams   map[uint64]chan StreamFrame
	onRequest func(Request)
}

// NewMux wraps rw for multiplexed read/write. OnRequest must be called
// before Run if the peer sends Requests (servers always do; clients never
// do in this module, so casclient leaves it unset).
func NewMux(w io.Writer) *Mux {
	return &Mux{
		w:         w,
		responses: make(map[uint64]chan Response),
		streams:   make(map[uint64]chan StreamFrame),
	}
}

// OnRequest installs the handler invoked (in a new goroutine, one per
// incoming request) for every Request Envelope read by Run.
func (m *Mux) OnRequest(f func(Request)) {
	m.onRequest = f
}

// Run reads Envelopes from r until it errors (including on a clean EOF),
// dispatching each to the registered handler or channel. It returns the
// first read error, which callers use to detect disconnect.
func (m *Mux) Run(r io.Reader) error {
	for {
		env, err := ReadEnvelope(r)
		if err != nil {
			m.closeAll()
			return err
		}
		switch env.Kind {
		case EnvelopeRequest:
			if m.onRequest != nil && env.Request != nil {
				go m.onRequest(*env.Request)
			}
		case EnvelopeResponse:
			if env.Response == nil {
				continue
			}
			m.mu.Lock()
			ch := m.responses[env.Response.ID]
			m.mu.Unlock()
			if ch != nil {
				ch <- *env.Response
			}
		case EnvelopeStream:
			if env.Stream == nil {
				continue
			}
			m.mu.Lock()
			ch := m.streams[env.Stream.StreamID]
			m.mu.Unlock()
			if ch != nil {
				ch <- *env.Stream
			}
		}
	}
}

func (m *Mux) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.responses {
		close(ch)
		delete(m.responses, id)
	}
	for id, ch := range m.streams {
		close(ch)
		delete(m.streams, id)
	}
}

// RegisterResponse opens a buffered channel for responses carrying id. Put
// registers it before sending the request and reads from it twice (the
// stream-open result, then the terminal done result).
func (m *Mux) RegisterResponse(id uint64) chan Response {
	ch := make(chan Response, 2)
	m.mu.Lock()
	m.responses[id] = ch
	m.mu.Unlock()
	return ch
}

// ReleaseResponse unregisters and closes the channel for id.
func (m *Mux) ReleaseResponse(id uint64) {
	m.mu.Lock()
	ch, ok := m.responses[id]
	delete(m.responses, id)
	m.mu.Unlock()
	if ok {
		close(ch)
	}
}

// RegisterStream opens a buffered channel for StreamFrames carrying
// streamID.
func (m *Mux) RegisterStream(streamID uint64) chan StreamFrame {
	ch := make(chan StreamFrame, 16)
	m.mu.Lock()
	m.streams[streamID] = ch
	m.mu.Unlock()
	return ch
}

// ReleaseStream unregisters and closes the channel for streamID.
func (m *Mux) ReleaseStream(streamID uint64) {
	m.mu.Lock()
	ch, ok := m.streams[streamID]
	delete(m.streams, streamID)
	m.mu.Unlock()
	if ok {
		close(ch)
	}
}

// WriteRequest, WriteResponse, and WriteStream serialize concurrent writers
// onto the connection; Envelopes from different logical calls must not
// interleave mid-frame.
func (m *Mux) WriteRequest(r Request) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return WriteRequest(m.w, r)
}

func (m *Mux) WriteResponse(r Response) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return WriteResponse(m.w, r)
}

func (m *Mux) WriteStream(s StreamFrame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return WriteStream(m.w, s)
}
