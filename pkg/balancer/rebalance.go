package balancer

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

// RebalanceStats reports what a Rebalance pass did, for the CLI's
// "N objects (M unique). K moves and L removals" summary line.
type RebalanceStats struct {
	ObjectsSeen   int
	UniqueObjects int
	Moves         int
	Removals      int
	Errors        []error
}

type presence struct {
	key     caskey.Key
	backend *sharding.Backend
}

// Rebalance repairs object placement across backends after a failure
// domain outage or a topology change, per ca-cas.cc's Balance: it lists
// every backend's live objects, computes each key's correct write-backend
// set from info's current ring, copies the key into any backend missing it
// (sourcing bytes from any backend that already has it) and removes it
// from any backend that holds it but shouldn't. It does not use a
// *Server, since rebalancing is a maintenance pass over the physical
// backends rather than request routing.
func Rebalance(ctx context.Context, info *sharding.Info, replication int, backends []*sharding.Backend) (RebalanceStats, error) {
	var stats RebalanceStats

	var mu sync.Mutex
	var presences []presence
	if err := fanOut(backends, func(b *sharding.Backend) error {
		return backendClient(b).List(ctx, casclient.ListDefault, 0, 1<<64-1, func(k caskey.Key) error {
			mu.Lock()
			presences = append(presences, presence{key: k, backend: b})
			mu.Unlock()
			return nil
		})
	}); err != nil {
		return stats, err
	}
	stats.ObjectsSeen = len(presences)

	sort.Slice(presences, func(i, j int) bool {
		return bytes.Compare(presences[i].key[:], presences[j].key[:]) < 0
	})

	type move struct {
		key  caskey.Key
		from *sharding.Backend
		to   *sharding.Backend
	}
	type removal struct {
		key     caskey.Key
		backend *sharding.Backend
	}
	var moves []move
	var removals []removal

	for i := 0; i < len(presences); {
		j := i
		for j < len(presences) && presences[j].key == presences[i].key {
			j++
		}
		stats.UniqueObjects++

		key := presences[i].key
		actual := make([]*sharding.Backend, 0, j-i)
		for k := i; k < j; k++ {
			actual = append(actual, presences[k].backend)
		}

		desired, err := info.GetWriteBackendsForKey(key, replication)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			i = j
			continue
		}
		actualSet := make(map[*sharding.Backend]bool, len(actual))
		for _, b := range actual {
			actualSet[b] = true
		}
		desiredSet := make(map[*sharding.Backend]bool, len(desired))
		for _, b := range desired {
			desiredSet[b] = true
		}

		for _, b := range desired {
			if !actualSet[b] {
				source := actual[rand.Intn(len(actual))]
				moves = append(moves, move{key: key, from: source, to: b})
			}
		}
		for _, b := range actual {
			if !desiredSet[b] {
				removals = append(removals, removal{key: key, backend: b})
			}
		}

		i = j
	}
	stats.Moves = len(moves)
	stats.Removals = len(removals)

	moveCh := make(chan move, len(moves))
	for _, m := range moves {
		moveCh <- m
	}
	close(moveCh)

	var errMu sync.Mutex
	var wg sync.WaitGroup
	moveWorkers := len(backends) * 2
	if moveWorkers < 1 {
		moveWorkers = 1
	}
	for w := 0; w < moveWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range moveCh {
				var buf bytes.Buffer
				if err := backendClient(m.from).Get(ctx, m.key.String(), 0, 0, &buf); err != nil {
					errMu.Lock()
					stats.Errors = append(stats.Errors, err)
					errMu.Unlock()
					continue
				}
				// backendClient(m.to).Put would inline objects smaller than
				// the client's threshold into the key itself rather than
				// issuing an RPC, silently skipping the copy. OpenPut always
				// talks to m.to, same as put.go's fan-out does for this
				// reason.
				stream, err := backendClient(m.to).OpenPut(ctx, m.key, true)
				if err != nil {
					errMu.Lock()
					stats.Errors = append(stats.Errors, err)
					errMu.Unlock()
					continue
				}
				if err := stream.WriteChunk(buf.Bytes()); err != nil {
					stream.Abort()
					errMu.Lock()
					stats.Errors = append(stats.Errors, err)
					errMu.Unlock()
					continue
				}
				if _, err := stream.Close(); err != nil {
					errMu.Lock()
					stats.Errors = append(stats.Errors, err)
					errMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	removalCh := make(chan removal, len(removals))
	for _, r := range removals {
		removalCh <- r
	}
	close(removalCh)

	removalWorkers := len(backends) * 10
	if removalWorkers < 1 {
		removalWorkers = 1
	}
	for w := 0; w < removalWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range removalCh {
				if err := backendClient(r.backend).Remove(ctx, r.key); err != nil {
					errMu.Lock()
					stats.Errors = append(stats.Errors, err)
					errMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return stats, nil
}
