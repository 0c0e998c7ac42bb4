// Package sharding implements the cluster-wide consistent hash ring that
// maps object keys to storage backends, per spec.md §4.4.
package sharding

import (
	"sort"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
)

// MaxFailureDomains bounds the failure-domain id space to 64, matching the
// bitmask used by GetWriteBackendsForKey to track which domains a replica
// set has already consumed.
const MaxFailureDomains = 64

// Backend is one storage-server connection the balancer fans requests out
// to: a client handle, its failure-domain id, and the bucket keys it
// contributed to the ring.
type Backend struct {
	Client        BackendClient
	FailureDomain int
	Buckets       []caskey.Key
}

// BackendClient is the subset of the storage-server client surface
// ShardingInfo needs to judge reachability. casclient.Client implements it.
type BackendClient interface {
	Connected() bool
}

type ringEntry struct {
	bucket  caskey.Key
	backend int
}

// HashRing is the sorted sequence of (bucket_key, backend_index) pairs
// merged from every backend's bucket list.
type HashRing []ringEntry

// Info holds the backend list and the merged ring built from their buckets.
type Info struct {
	Backends []*Backend
	ring     HashRing
}

// New builds a ShardingInfo from the given backends, extending the ring
// with every backend's (bucket, backend_index) pairs and sorting the result.
func New(backends []*Backend) *Info {
	info := &Info{Backends: backends}
	for i, b := range backends {
		for _, bucket := range b.Buckets {
			info.ring = append(info.ring, ringEntry{bucket: bucket, backend: i})
		}
	}
	sort.Slice(info.ring, func(i, j int) bool {
		return lessKey(info.ring[i].bucket, info.ring[j].bucket)
	})
	return info
}

func lessKey(a, b caskey.Key) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// firstPosition returns the ring index of the smallest bucket_key >= key,
// wrapping to 0 if key is greater than every bucket.
func (info *Info) firstPosition(key caskey.Key) int {
	pos := sort.Search(len(info.ring), func(i int) bool {
		return !lessKey(info.ring[i].bucket, key)
	})
	if pos == len(info.ring) {
		return 0
	}
	return pos
}

// FirstBackendForKey returns the backend owning the ring entry with the
// smallest bucket_key >= key, wrapping to index 0.
func (info *Info) FirstBackendForKey(key caskey.Key) (*Backend, error) {
	if len(info.ring) == 0 {
		return nil, errs.InsufficientReplicas("sharding: empty hash ring")
	}
	pos := info.firstPosition(key)
	return info.Backends[info.ring[pos].backend], nil
}

// GetWriteBackendsForKey walks the ring from key's position, collecting up
// to r distinct, currently-connected backends whose failure domains have
// not yet been consumed. It fails if a full loop completes without
// reaching r.
func (info *Info) GetWriteBackendsForKey(key caskey.Key, r int) ([]*Backend, error) {
	if len(info.ring) == 0 {
		return nil, errs.InsufficientReplicas("sharding: empty hash ring")
	}

	var (
		out          []*Backend
		domainsUsed  uint64
		backendsUsed = make(map[int]bool, r)
		start        = info.firstPosition(key)
	)

	for i := 0; i < len(info.ring) && len(out) < r; i++ {
		entry := info.ring[(start+i)%len(info.ring)]
		if backendsUsed[entry.backend] {
			continue
		}
		backend := info.Backends[entry.backend]
		if !backend.Client.Connected() {
			continue
		}
		domainBit := uint64(1) << uint(backend.FailureDomain%MaxFailureDomains)
		if domainsUsed&domainBit != 0 {
			continue
		}
		domainsUsed |= domainBit
		backendsUsed[entry.backend] = true
		out = append(out, backend)
	}

	if len(out) < r {
		return nil, errs.InsufficientReplicas("sharding: ring exhausted before reaching replication factor")
	}
	return out, nil
}

// NextShardForKey walks the ring from key's position and returns the first
// connected backend not present in alreadyTried, failing after a full loop.
func (info *Info) NextShardForKey(key caskey.Key, alreadyTried map[*Backend]bool) (*Backend, error) {
	if len(info.ring) == 0 {
		return nil, errs.InsufficientReplicas("sharding: empty hash ring")
	}

	start := info.firstPosition(key)
	for i := 0; i < len(info.ring); i++ {
		entry := info.ring[(start+i)%len(info.ring)]
		backend := info.Backends[entry.backend]
		if alreadyTried[backend] {
			continue
		}
		if !backend.Client.Connected() {
			continue
		}
		return backend, nil
	}
	return nil, errs.InsufficientReplicas("sharding: no viable backend left on ring")
}
