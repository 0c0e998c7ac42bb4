// Package casclient implements the reconnecting CAS client named in
// spec.md §4.3: tiny-object in-key inlining, chunked put/get, list
// pagination, and the GC verbs, over a single pkg/wire RPC session.
package casclient

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/dlogger"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

const (
	// DefaultInlineThreshold is the default max_object_in_key_size: puts
	// smaller than this never talk to the server.
	DefaultInlineThreshold = 128

	putChunkSize = 1 << 20 // 1 MiB, per spec.md §4.3
	getChunkSize = 8 << 20 // 8 MiB, matches storageserver's own chunk size

	minReconnectDelay = 500 * time.Microsecond
	maxReconnectDelay = time.Second
	dialTimeout       = 5 * time.Second
)

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger overrides the client's zap logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithInlineThreshold overrides DefaultInlineThreshold.
func WithInlineThreshold(n int) Option { return func(c *Client) { c.inlineThreshold = n } }

// Client is a reconnecting RPC session to one storage-server backend.
type Client struct {
	addr            string
	inlineThreshold int
	log             *zap.Logger

	mu          sync.Mutex
	conn        net.Conn
	mux         *wire.Mux
	nextID      uint64
	reconnectAt time.Duration
}

// New constructs a Client for addr. The connection is not established
// until the first operation, per spec.md §4.3's lazy-connect rule.
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:            addr,
		inlineThreshold: DefaultInlineThreshold,
		reconnectAt:     minReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = dlogger.MustGetLogger(dlogger.LogLevelNone)
	}
	return c
}

// Connected reports whether the session currently has a live connection,
// satisfying pkg/sharding's BackendClient interface.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mux != nil
}

// Close tears down the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.mux = nil
	return err
}

// ensureConn returns the current session, dialing (with doubling backoff
// starting at 500µs, capped at 1s) if disconnected. A successful connect
// resets the backoff.
func (c *Client) ensureConn(ctx context.Context) (*wire.Mux, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mux != nil {
		return c.mux, nil
	}

	for {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", c.addr)
		cancel()
		if err == nil {
			c.conn = conn
			mux := wire.NewMux(conn)
			c.mux = mux
			c.reconnectAt = minReconnectDelay
			go c.runLoop(conn, mux)
			return mux, nil
		}

		c.log.Debug("casclient: connect failed, backing off",
			zap.String("addr", c.addr), zap.Duration("delay", c.reconnectAt), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.reconnectAt):
		}
		c.reconnectAt *= 2
		if c.reconnectAt > maxReconnectDelay {
			c.reconnectAt = maxReconnectDelay
		}
	}
}

// runLoop drains incoming Envelopes until the connection drops, then clears
// the session so the next operation reconnects.
func (c *Client) runLoop(conn net.Conn, mux *wire.Mux) {
	_ = mux.Run(conn)
	c.mu.Lock()
	if c.mux == mux {
		c.mux = nil
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) newID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// call sends one Request and waits for its single Response.
func (c *Client) call(ctx context.Context, method string, args interface{}, result interface{}) error {
	mux, err := c.ensureConn(ctx)
	if err != nil {
		return errs.TransportLost("casclient: connecting to " + c.addr).Wrap(err)
	}

	argBuf, err := wire.Marshal(args)
	if err != nil {
		return errs.MalformedInput("casclient: encoding " + method + " args").Wrap(err)
	}

	id := c.newID()
	respCh := mux.RegisterResponse(id)
	defer mux.ReleaseResponse(id)

	if err := mux.WriteRequest(wire.Request{ID: id, Method: method, Args: argBuf}); err != nil {
		return errs.TransportLost("casclient: sending " + method).Wrap(err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return errs.TransportLost("casclient: connection closed awaiting " + method + " response")
		}
		if resp.Err != nil {
			return wireErrToErrs(resp.Err)
		}
		if result != nil {
			return wire.Unmarshal(resp.Result, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wireErrToErrs(e *wire.Error) error {
	switch e.Kind {
	case errs.KindNotFound.String():
		return errs.NotFound(e.Message)
	case errs.KindDigestMismatch.String():
		return errs.DigestMismatch(e.Message)
	case errs.KindGCRace.String():
		return errs.GCRace(e.Message)
	case errs.KindInsufficientReplicas.String():
		return errs.InsufficientReplicas(e.Message)
	case errs.KindDiskError.String():
		return errs.DiskError(e.Message)
	case errs.KindMalformedInput.String():
		return errs.MalformedInput(e.Message)
	default:
		return errs.TransportLost(e.Message)
	}
}

// Capacity reports the backend's {total, available, unreclaimed, garbage}.
type Capacity struct {
	Total       uint64
	Available   uint64
	Unreclaimed uint64
	Garbage     uint64
}

func (c *Client) Capacity(ctx context.Context) (Capacity, error) {
	var result wire.CapacityResult
	if err := c.call(ctx, wire.MethodCapacity, struct{}{}, &result); err != nil {
		return Capacity{}, err
	}
	return Capacity{
		Total:       result.Total,
		Available:   result.Available,
		Unreclaimed: result.Unreclaimed,
		Garbage:     result.Garbage,
	}, nil
}

func (c *Client) Remove(ctx context.Context, key caskey.Key) error {
	return c.call(ctx, wire.MethodRemove, wire.RemoveArgs{Key: key[:]}, nil)
}

func (c *Client) Compact(ctx context.Context, sync bool) error {
	return c.call(ctx, wire.MethodCompact, wire.CompactArgs{Sync: sync}, nil)
}

func (c *Client) BeginGC(ctx context.Context) (uint64, error) {
	var result wire.BeginGCResult
	if err := c.call(ctx, wire.MethodBeginGC, struct{}{}, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

func (c *Client) MarkGC(ctx context.Context, keys []caskey.Key) error {
	args := wire.MarkGCArgs{Keys: make([][]byte, len(keys))}
	for i, k := range keys {
		kk := k
		args.Keys[i] = kk[:]
	}
	return c.call(ctx, wire.MethodMarkGC, args, nil)
}

func (c *Client) EndGC(ctx context.Context, id uint64) error {
	return c.call(ctx, wire.MethodEndGC, wire.EndGCArgs{ID: id}, nil)
}

func (c *Client) GetConfig(ctx context.Context) ([]caskey.Key, error) {
	var result wire.GetConfigResult
	if err := c.call(ctx, wire.MethodGetConfig, struct{}{}, &result); err != nil {
		return nil, err
	}
	buckets := make([]caskey.Key, len(result.Buckets))
	for i, b := range result.Buckets {
		k, err := caskey.New(b)
		if err != nil {
			return nil, errs.MalformedInput("casclient: decoding bucket key").Wrap(err)
		}
		buckets[i] = k
	}
	return buckets, nil
}
