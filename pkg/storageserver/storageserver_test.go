package storageserver_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
)

func open(t *testing.T) *storageserver.Server {
	t.Helper()
	s, err := storageserver.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmptyPutKnownDigest(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	key := caskey.SumBytes(nil)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", key.String())

	require.NoError(t, s.Put(ctx, key, strings.NewReader(""), true))

	var buf bytes.Buffer
	n, err := s.Get(ctx, key, 0, 0, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, "", buf.String())
}

func TestSingleBytePutKnownDigest(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	key := caskey.SumBytes([]byte("a"))
	assert.Equal(t, "86f7e437faa5a7fce15d1ddcb9eaeaea377667b8", key.String())

	require.NoError(t, s.Put(ctx, key, strings.NewReader("a"), true))

	var buf bytes.Buffer
	_, err := s.Get(ctx, key, 0, 1, &buf)
	require.NoError(t, err)
	assert.Equal(t, "a", buf.String())
}

func TestRoundTripArbitraryBytes(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	payload := []byte("the quick brown fox jumps over the lazy dog")
	key := caskey.SumBytes(payload)
	require.NoError(t, s.Put(ctx, key, bytes.NewReader(payload), false))

	var buf bytes.Buffer
	_, err := s.Get(ctx, key, 0, uint64(len(payload)), &buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.Bytes())
}

func TestIdempotentPut(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	payload := []byte("duplicate me")
	key := caskey.SumBytes(payload)

	require.NoError(t, s.Put(ctx, key, bytes.NewReader(payload), false))
	list1, err := s.List(storageserver.ListDefault, 0, 1<<32)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, key, bytes.NewReader(payload), false))
	list2, err := s.List(storageserver.ListDefault, 0, 1<<32)
	require.NoError(t, err)

	assert.Len(t, list1, 1)
	assert.Equal(t, list1, list2)
}

func TestDigestMismatchRejectsPut(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	wrongKey := caskey.SumBytes([]byte("not this"))
	err := s.Put(ctx, wrongKey, strings.NewReader("something else"), false)
	require.Error(t, err)
	assert.Equal(t, errs.KindDigestMismatch, errs.KindOf(err))

	list, err := s.List(storageserver.ListDefault, 0, 1<<32)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRemoveThenGetNotFound(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	payload := []byte("ephemeral")
	key := caskey.SumBytes(payload)
	require.NoError(t, s.Put(ctx, key, bytes.NewReader(payload), false))
	require.NoError(t, s.Remove(key))

	var buf bytes.Buffer
	_, err := s.Get(ctx, key, 0, 0, &buf)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	list, err := s.List(storageserver.ListDefault, 0, 1<<32)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGCKeepList(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	a := []byte("object A")
	b := []byte("object B")
	keyA := caskey.SumBytes(a)
	keyB := caskey.SumBytes(b)

	require.NoError(t, s.Put(ctx, keyA, bytes.NewReader(a), false))
	require.NoError(t, s.Put(ctx, keyB, bytes.NewReader(b), false))

	id := s.BeginGC()
	require.NoError(t, s.MarkGC([]caskey.Key{keyA}))
	require.NoError(t, s.EndGC(id))

	list, err := s.List(storageserver.ListDefault, 0, 1<<32)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keyA, list[0].Key)

	var buf bytes.Buffer
	_, err = s.Get(ctx, keyB, 0, 0, &buf)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestGCRaceSafety(t *testing.T) {
	s := open(t)

	id1 := s.BeginGC()
	_ = s.BeginGC() // a second beginGC invalidates the first cycle

	err := s.EndGC(id1)
	require.Error(t, err)
	assert.Equal(t, errs.KindGCRace, errs.KindOf(err))
}

func TestCompactionPreservesData(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	keys := make([]caskey.Key, 0, 6)
	for i := 0; i < 6; i++ {
		payload := bytes.Repeat([]byte{byte('a' + i)}, 4096)
		key := caskey.SumBytes(payload)
		require.NoError(t, s.Put(ctx, key, bytes.NewReader(payload), false))
		keys = append(keys, key)
	}

	// Remove half the keys so compaction has unreclaimed space to recover.
	for i := 0; i < len(keys); i += 2 {
		require.NoError(t, s.Remove(keys[i]))
	}

	require.NoError(t, s.Compact(ctx, true))

	for i := 1; i < len(keys); i += 2 {
		var buf bytes.Buffer
		_, err := s.Get(ctx, keys[i], 0, 4096, &buf)
		require.NoError(t, err)
		assert.Len(t, buf.Bytes(), 4096)
	}
}

func TestReplayDeterminismAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := storageserver.Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte("persisted across restart")
	key := caskey.SumBytes(payload)
	require.NoError(t, s1.Put(ctx, key, bytes.NewReader(payload), true))
	require.NoError(t, s1.Close())

	s2, err := storageserver.Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	var buf bytes.Buffer
	_, err = s2.Get(ctx, key, 0, uint64(len(payload)), &buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.Bytes())
}
