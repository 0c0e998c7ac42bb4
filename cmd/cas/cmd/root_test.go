package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mortehu/cantera-cas/pkg/casclient"
)

func TestRootCommandRegistersEveryVerb(t *testing.T) {
	want := []string{
		"get", "put", "rm", "list", "capacity", "compact",
		"begin-gc", "mark-gc", "end-gc", "balance", "export", "ping",
	}
	got := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "expected %q to be registered", name)
	}
}

func TestMaxSizeDefaultsToUnbounded(t *testing.T) {
	saved := params.maxSize
	defer func() { params.maxSize = saved }()

	params.maxSize = 0
	assert.Equal(t, uint64(1<<64-1), maxSize())

	params.maxSize = 42
	assert.Equal(t, uint64(42), maxSize())
}

func TestListModeMapsGarbageKeyword(t *testing.T) {
	saved := params.listMode
	defer func() { params.listMode = saved }()

	params.listMode = "garbage"
	assert.Equal(t, casclient.ListGarbage, listMode())

	params.listMode = "default"
	assert.Equal(t, casclient.ListDefault, listMode())
}
