package balancer_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/balancer"
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/casclient"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

// TestRebalanceMovesSmallObjectToDestinationBackend guards against
// rebalance.go's move worker using casclient.Client.Put for the copy:
// objects smaller than casclient.DefaultInlineThreshold never reach the
// wire through Put — it returns an inline key locally instead — so a move
// built on Put would report success without the destination backend ever
// holding the bytes.
func TestRebalanceMovesSmallObjectToDestinationBackend(t *testing.T) {
	source := startBackend(t, 0)
	dest := startBackend(t, 1)
	ctx := context.Background()

	payload := []byte("tiny") // well under casclient.DefaultInlineThreshold
	key := caskey.SumBytes(payload)

	// Seed only the source backend, bypassing the client's inline
	// threshold via OpenPut so the object is genuinely stored there.
	sourceClient := source.Client.(*casclient.Client)
	stream, err := sourceClient.OpenPut(ctx, key, true)
	require.NoError(t, err)
	require.NoError(t, stream.WriteChunk(payload))
	_, err = stream.Close()
	require.NoError(t, err)

	info := sharding.New([]*sharding.Backend{source, dest})
	stats, err := balancer.Rebalance(ctx, info, 2, []*sharding.Backend{source, dest})
	require.NoError(t, err)
	require.Empty(t, stats.Errors)
	require.Equal(t, 1, stats.Moves)

	destClient := dest.Client.(*casclient.Client)
	var buf bytes.Buffer
	require.NoError(t, destClient.Get(ctx, key.String(), 0, 0, &buf))
	require.Equal(t, payload, buf.Bytes())
}
