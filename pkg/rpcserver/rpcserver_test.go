package rpcserver_test

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/metrics"
	"github.com/mortehu/cantera-cas/pkg/rpcserver"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

func startServer(t *testing.T) net.Addr {
	addr, _ := startServerWithMetrics(t, nil)
	return addr
}

func startServerWithMetrics(t *testing.T, m *metrics.Metrics) (net.Addr, *storageserver.Server) {
	t.Helper()
	store, err := storageserver.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	var opts []rpcserver.Option
	if m != nil {
		opts = append(opts, rpcserver.WithMetrics(m))
	}
	srv := rpcserver.New(store, nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, l)
	return l.Addr(), store
}

func TestPutGetOverWire(t *testing.T) {
	addr := startServer(t)

	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	mux := wire.NewMux(conn)
	go mux.Run(conn)

	payload := []byte("hello over the wire")
	key := caskey.SumBytes(payload)

	putArgs, err := wire.Marshal(wire.PutArgs{Key: key[:], Sync: false})
	require.NoError(t, err)

	openRespCh := mux.RegisterResponse(1)
	require.NoError(t, mux.WriteRequest(wire.Request{ID: 1, Method: wire.MethodPut, Args: putArgs}))

	openResp := <-openRespCh
	require.Nil(t, openResp.Err)
	var putResult wire.PutResult
	require.NoError(t, wire.Unmarshal(openResp.Result, &putResult))

	require.NoError(t, mux.WriteStream(wire.StreamFrame{StreamID: putResult.StreamID, Data: payload}))
	require.NoError(t, mux.WriteStream(wire.StreamFrame{StreamID: putResult.StreamID, Done: true}))

	doneResp := <-openRespCh
	mux.ReleaseResponse(1)
	require.Nil(t, doneResp.Err)
	var doneResult wire.PutDoneResult
	require.NoError(t, wire.Unmarshal(doneResp.Result, &doneResult))
	require.Equal(t, key[:], doneResult.Key)

	getArgs, err := wire.Marshal(wire.GetArgs{Key: key[:]})
	require.NoError(t, err)

	getRespCh := mux.RegisterResponse(2)
	require.NoError(t, mux.WriteRequest(wire.Request{ID: 2, Method: wire.MethodGet, Args: getArgs}))
	getResp := <-getRespCh
	mux.ReleaseResponse(2)
	require.Nil(t, getResp.Err)

	var getResult wire.GetResult
	require.NoError(t, wire.Unmarshal(getResp.Result, &getResult))
	require.Equal(t, uint64(len(payload)), getResult.ExpectSize)

	streamCh := mux.RegisterStream(getResult.StreamID)
	var buf bytes.Buffer
	for {
		frame := <-streamCh
		require.Nil(t, frame.Err)
		if frame.Done {
			break
		}
		buf.Write(frame.Data)
	}
	mux.ReleaseStream(getResult.StreamID)

	require.Equal(t, payload, buf.Bytes())
}

func TestWithMetricsObservesPutOverWire(t *testing.T) {
	m := metrics.New("rpcserver_test")
	addr, _ := startServerWithMetrics(t, m)

	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	mux := wire.NewMux(conn)
	go mux.Run(conn)

	payload := []byte("observed over the wire")
	key := caskey.SumBytes(payload)

	putArgs, err := wire.Marshal(wire.PutArgs{Key: key[:], Sync: false})
	require.NoError(t, err)

	respCh := mux.RegisterResponse(1)
	require.NoError(t, mux.WriteRequest(wire.Request{ID: 1, Method: wire.MethodPut, Args: putArgs}))
	openResp := <-respCh
	require.Nil(t, openResp.Err)
	var putResult wire.PutResult
	require.NoError(t, wire.Unmarshal(openResp.Result, &putResult))

	require.NoError(t, mux.WriteStream(wire.StreamFrame{StreamID: putResult.StreamID, Data: payload}))
	require.NoError(t, mux.WriteStream(wire.StreamFrame{StreamID: putResult.StreamID, Done: true}))
	doneResp := <-respCh
	mux.ReleaseResponse(1)
	require.Nil(t, doneResp.Err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Contains(t, rec.Body.String(), "rpcserver_test_bytes_put_total")
	require.Contains(t, rec.Body.String(), `rpcserver_test_ops_total{method="put"}`)
}
