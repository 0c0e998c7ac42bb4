package asyncio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/asyncio"
)

func TestPwritePreadRoundTrip(t *testing.T) {
	svc := asyncio.New(asyncio.Workers(2))
	defer svc.Close()

	path := filepath.Join(t.TempDir(), "data")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := svc.Pwrite(ctx, f, []byte("hello world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	require.NoError(t, svc.Fsync(ctx, f))

	buf := make([]byte, 5)
	n, err = svc.Pread(ctx, f, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))
}

func TestSubmitAfterCloseFails(t *testing.T) {
	svc := asyncio.New(asyncio.Workers(1))
	svc.Close()

	path := filepath.Join(t.TempDir(), "data")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = svc.Pwrite(context.Background(), f, []byte("x"), 0)
	require.Error(t, err)
}
