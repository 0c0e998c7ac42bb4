package indexfmt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
)

func TestMakeOffsetRoundTrip(t *testing.T) {
	off, err := indexfmt.MakeOffset(3, 1<<40, false)
	require.NoError(t, err)
	assert.False(t, indexfmt.IsDeleted(off))
	assert.Equal(t, 3, indexfmt.DataFileIndex(off))
	assert.Equal(t, uint64(1<<40), indexfmt.ByteOffset(off))
}

func TestMakeOffsetDeleted(t *testing.T) {
	off, err := indexfmt.MakeOffset(49, 0, true)
	require.NoError(t, err)
	assert.True(t, indexfmt.IsDeleted(off))
	assert.Equal(t, 49, indexfmt.DataFileIndex(off))
}

func TestWithDeletedPreservesFields(t *testing.T) {
	off, err := indexfmt.MakeOffset(5, 1234, false)
	require.NoError(t, err)
	tomb := indexfmt.WithDeleted(off)
	assert.True(t, indexfmt.IsDeleted(tomb))
	assert.Equal(t, 5, indexfmt.DataFileIndex(tomb))
	assert.Equal(t, uint64(1234), indexfmt.ByteOffset(tomb))
}

func TestMakeOffsetRejectsOutOfRange(t *testing.T) {
	_, err := indexfmt.MakeOffset(indexfmt.MaxDataFiles, 0, false)
	require.Error(t, err)

	_, err = indexfmt.MakeOffset(0, 1<<56, false)
	require.Error(t, err)
}

func TestEntryMarshalUnmarshal(t *testing.T) {
	key := caskey.SumBytes([]byte("some object"))
	off, err := indexfmt.MakeOffset(1, 4096, false)
	require.NoError(t, err)

	e := indexfmt.Entry{Offset: off, Size: 7, Key: key}
	buf := e.Marshal()
	assert.Len(t, buf, indexfmt.EntrySize)

	got, err := indexfmt.Unmarshal(buf[:])
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	_, err := indexfmt.Unmarshal(make([]byte, 10))
	require.Error(t, err)
}
