package wire

// Argument and result structs for every CAS operation named in the
// external interface. These are the msgpack payloads carried inside
// Request.Args / Response.Result.

// PutArgs opens a put stream for key, which must be the full 20-byte
// digest of the bytes about to be streamed. handlePut rejects any other
// length with KindMalformedInput — there is no server-side "compute the
// key from the streamed bytes" mode.
type PutArgs struct {
	Key  []byte
	Sync bool
}

// PutResult carries the StreamID the caller then feeds StreamFrame values
// into.
type PutResult struct {
	StreamID uint64
}

// PutDoneResult is the terminal result of a put, delivered on the stream's
// Done frame's companion out-of-band response.
type PutDoneResult struct {
	Key []byte
}

// GetArgs requests a byte range of an object.
type GetArgs struct {
	Key    []byte
	Offset uint64
	Size   uint64
}

// GetResult carries the StreamID the caller then reads StreamFrame values
// from, plus the advisory total size of the stream about to be sent.
type GetResult struct {
	StreamID   uint64
	ExpectSize uint64
}

// RemoveArgs requests deletion of one key.
type RemoveArgs struct {
	Key []byte
}

// ListMode selects between all live objects and only GC-marked ones.
type ListMode int

const (
	ListModeDefault ListMode = iota
	ListModeGarbage
)

// ListArgs opens a paginated object listing.
type ListArgs struct {
	Mode    ListMode
	MinSize uint64
	MaxSize uint64
}

// ListResult carries a cursor handle used by subsequent ListReadArgs calls.
type ListResult struct {
	CursorID uint64
}

// ListReadArgs pulls the next batch of keys from a cursor opened by list.
type ListReadArgs struct {
	CursorID uint64
	Count    uint32
}

// ListReadResult is one page of 20-byte keys, one slice per key.
type ListReadResult struct {
	Keys [][]byte
}

// CapacityResult reports the four counters named in the external
// interface.
type CapacityResult struct {
	Total       uint64
	Available   uint64
	Unreclaimed uint64
	Garbage     uint64
}

// CompactArgs requests an on-line compaction pass.
type CompactArgs struct {
	Sync bool
}

// BeginGCResult carries the newly assigned generation id.
type BeginGCResult struct {
	ID uint64
}

// MarkGCArgs un-marks (keeps) the given keys within the current GC cycle.
type MarkGCArgs struct {
	Keys [][]byte
}

// EndGCArgs closes a GC cycle, sweeping everything still marked.
type EndGCArgs struct {
	ID uint64
}

// GetConfigResult carries the repository's sorted bucket list.
type GetConfigResult struct {
	Buckets [][]byte
}
