package balancer_test

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/balancer"
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/rpcserver"
	"github.com/mortehu/cantera-cas/pkg/sharding"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
)

func startBackend(t *testing.T, failureDomain int) *sharding.Backend {
	t.Helper()
	store, err := storageserver.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	srv := rpcserver.New(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, l)

	client := casclient.New(l.Addr().String())
	buckets, err := client.GetConfig(ctx) // connects the client, as cmd/cas-balanced does at startup
	require.NoError(t, err)

	return &sharding.Backend{Client: client, FailureDomain: failureDomain, Buckets: buckets}
}

func TestBalancerPutReplicatesAndGetRetrieves(t *testing.T) {
	backends := []*sharding.Backend{
		startBackend(t, 0),
		startBackend(t, 1),
		startBackend(t, 2),
	}
	b := balancer.New(backends, 2, nil)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("balancer test payload"), 50)
	key := caskey.SumBytes(payload)

	require.NoError(t, b.Put(ctx, key, bytes.NewReader(payload), true))

	var buf bytes.Buffer
	require.NoError(t, b.Get(ctx, key, 0, 0, &buf))
	assert.Equal(t, payload, buf.Bytes())
}

func TestBalancerPutStreamsAcrossMultipleChunks(t *testing.T) {
	backends := []*sharding.Backend{startBackend(t, 0), startBackend(t, 1)}
	b := balancer.New(backends, 2, nil)
	ctx := context.Background()

	// Several times casclient's 1 MiB chunk size, so Put's fan-out loop
	// reads and replicates more than one chunk.
	payload := bytes.Repeat([]byte("x"), 3<<20+17)
	key := caskey.SumBytes(payload)

	require.NoError(t, b.Put(ctx, key, bytes.NewReader(payload), true))

	var buf bytes.Buffer
	require.NoError(t, b.Get(ctx, key, 0, 0, &buf))
	assert.Equal(t, payload, buf.Bytes())
}

func TestBalancerPutRejectsDigestMismatch(t *testing.T) {
	backends := []*sharding.Backend{startBackend(t, 0), startBackend(t, 1)}
	b := balancer.New(backends, 2, nil)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("mismatched"), 10)
	wrongKey := caskey.SumBytes([]byte("not this"))

	err := b.Put(ctx, wrongKey, bytes.NewReader(payload), true)
	require.Error(t, err)
}

func TestBalancerClusterGC(t *testing.T) {
	backends := []*sharding.Backend{startBackend(t, 0), startBackend(t, 1)}
	b := balancer.New(backends, 2, nil)
	ctx := context.Background()

	payloadA := bytes.Repeat([]byte("keep"), 64)
	payloadB := bytes.Repeat([]byte("drop"), 64)
	keyA := caskey.SumBytes(payloadA)
	keyB := caskey.SumBytes(payloadB)

	require.NoError(t, b.Put(ctx, keyA, bytes.NewReader(payloadA), true))
	require.NoError(t, b.Put(ctx, keyB, bytes.NewReader(payloadB), true))

	id, err := b.BeginGC(ctx)
	require.NoError(t, err)
	require.NoError(t, b.MarkGC(ctx, []caskey.Key{keyA}))
	require.NoError(t, b.EndGC(ctx, id))

	var buf bytes.Buffer
	require.NoError(t, b.Get(ctx, keyA, 0, 0, &buf))
	assert.Equal(t, payloadA, buf.Bytes())

	err = b.Get(ctx, keyB, 0, 0, &bytes.Buffer{})
	require.Error(t, err)
}

func TestBalancerEndGCRaceIsRejected(t *testing.T) {
	backends := []*sharding.Backend{startBackend(t, 0)}
	b := balancer.New(backends, 1, nil)
	ctx := context.Background()

	id, err := b.BeginGC(ctx)
	require.NoError(t, err)
	_, err = b.BeginGC(ctx)
	require.NoError(t, err)

	err = b.EndGC(ctx, id)
	require.Error(t, err)
}
