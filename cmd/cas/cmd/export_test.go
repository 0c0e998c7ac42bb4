package cmd

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
)

func TestReadKeyListParsesOneKeyPerLine(t *testing.T) {
	a := caskey.SumBytes([]byte("alpha"))
	b := caskey.SumBytes([]byte("beta"))

	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	require.NoError(t, ioutil.WriteFile(path, []byte(a.String()+"\n\n"+b.String()+"\n"), 0o644))

	got := make(map[caskey.Key]struct{})
	require.NoError(t, readKeyList(path, got))

	assert.Len(t, got, 2)
	_, ok := got[a]
	assert.True(t, ok)
	_, ok = got[b]
	assert.True(t, ok)
}

func TestReadKeyListRejectsMalformedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	require.NoError(t, ioutil.WriteFile(path, []byte("not-a-valid-key\n"), 0o644))

	err := readKeyList(path, make(map[caskey.Key]struct{}))
	assert.Error(t, err)
}

func TestReadKeyListReadsFromStdinMarker(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	savedStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = savedStdin }()

	key := caskey.SumBytes([]byte("gamma"))
	go func() {
		_, _ = w.Write([]byte(key.String() + "\n"))
		w.Close()
	}()

	got := make(map[caskey.Key]struct{})
	require.NoError(t, readKeyList("-", got))
	assert.Len(t, got, 1)
}
