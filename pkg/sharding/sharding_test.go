package sharding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

type fakeClient struct{ connected bool }

func (f *fakeClient) Connected() bool { return f.connected }

func key(b byte) caskey.Key {
	var k caskey.Key
	k[0] = b
	return k
}

func TestFirstBackendForKeyWraps(t *testing.T) {
	backends := []*sharding.Backend{
		{Client: &fakeClient{connected: true}, FailureDomain: 0, Buckets: []caskey.Key{key(0x10)}},
		{Client: &fakeClient{connected: true}, FailureDomain: 1, Buckets: []caskey.Key{key(0xf0)}},
	}
	info := sharding.New(backends)

	b, err := info.FirstBackendForKey(key(0xff))
	require.NoError(t, err)
	assert.Same(t, backends[0], b) // wraps past the end of the ring back to index 0
}

func TestGetWriteBackendsForKeyRespectsFailureDomains(t *testing.T) {
	backends := []*sharding.Backend{
		{Client: &fakeClient{connected: true}, FailureDomain: 0, Buckets: []caskey.Key{key(0x10)}},
		{Client: &fakeClient{connected: true}, FailureDomain: 0, Buckets: []caskey.Key{key(0x20)}},
		{Client: &fakeClient{connected: true}, FailureDomain: 1, Buckets: []caskey.Key{key(0x30)}},
	}
	info := sharding.New(backends)

	got, err := info.GetWriteBackendsForKey(key(0x01), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Same(t, backends[0], got[0])
	assert.Same(t, backends[2], got[1]) // backend 1 shares domain 0 with backend 0, skipped
}

func TestGetWriteBackendsForKeyFailsWhenUnderReplicated(t *testing.T) {
	backends := []*sharding.Backend{
		{Client: &fakeClient{connected: true}, FailureDomain: 0, Buckets: []caskey.Key{key(0x10)}},
	}
	info := sharding.New(backends)

	_, err := info.GetWriteBackendsForKey(key(0x01), 2)
	require.Error(t, err)
}

func TestNextShardForKeySkipsTried(t *testing.T) {
	backends := []*sharding.Backend{
		{Client: &fakeClient{connected: true}, FailureDomain: 0, Buckets: []caskey.Key{key(0x10)}},
		{Client: &fakeClient{connected: true}, FailureDomain: 1, Buckets: []caskey.Key{key(0x20)}},
	}
	info := sharding.New(backends)

	tried := map[*sharding.Backend]bool{backends[0]: true}
	got, err := info.NextShardForKey(key(0x01), tried)
	require.NoError(t, err)
	assert.Same(t, backends[1], got)
}

func TestNextShardForKeyFailsWhenExhausted(t *testing.T) {
	backends := []*sharding.Backend{
		{Client: &fakeClient{connected: true}, FailureDomain: 0, Buckets: []caskey.Key{key(0x10)}},
	}
	info := sharding.New(backends)

	tried := map[*sharding.Backend]bool{backends[0]: true}
	_, err := info.NextShardForKey(key(0x01), tried)
	require.Error(t, err)
}
