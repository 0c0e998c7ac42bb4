package fsck_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/fsck"
	"github.com/mortehu/cantera-cas/pkg/storageserver"
)

func TestCheckCleanRepositoryHasNoProblems(t *testing.T) {
	dir := t.TempDir()
	store, err := storageserver.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	for _, payload := range []string{"alpha", "bravo", "charlie"} {
		require.NoError(t, store.Put(context.Background(), caskey.SumBytes([]byte(payload)), bytes.NewReader([]byte(payload)), true))
	}

	report, err := fsck.Check(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 3, report.EntriesChecked)
	assert.Empty(t, report.Problems)
}

func TestCheckDetectsCorruptedDataFile(t *testing.T) {
	dir := t.TempDir()
	store, err := storageserver.Open(dir)
	require.NoError(t, err)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	key := caskey.SumBytes(payload)
	require.NoError(t, store.Put(context.Background(), key, bytes.NewReader(payload), true))
	require.NoError(t, store.Close())

	dataPath := filepath.Join(dir, "data")
	b, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	require.NotEmpty(t, b)
	b[0] ^= 0xff
	require.NoError(t, os.WriteFile(dataPath, b, 0o644))

	store, err = storageserver.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	report, err := fsck.Check(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, report.Problems, 1)
	assert.Equal(t, "digest-mismatch", report.Problems[0].Kind)
	assert.Equal(t, key, report.Problems[0].Key)
}
