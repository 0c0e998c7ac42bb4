package caskey_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/caskey"
)

func TestSumEmptyAndSingleByte(t *testing.T) {
	empty := caskey.SumBytes(nil)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", empty.String())

	a := caskey.SumBytes([]byte("a"))
	assert.Equal(t, "86f7e437faa5a7fce15d1ddcb9eaeaea377667b8", a.String())
}

func TestSumFromReader(t *testing.T) {
	k, err := caskey.Sum(strings.NewReader("a"))
	require.NoError(t, err)
	assert.Equal(t, "86f7e437faa5a7fce15d1ddcb9eaeaea377667b8", k.String())
}

func TestHexRoundTrip(t *testing.T) {
	want := caskey.SumBytes([]byte("hello world"))
	got, err := caskey.ParseHex(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGStringRoundTrip(t *testing.T) {
	want := caskey.SumBytes([]byte("hello world"))
	g := want.GString()
	assert.True(t, strings.HasPrefix(g, "G"))
	assert.Len(t, g, 1+28)

	got, err := caskey.ParseGString(g)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInlineRoundTrip(t *testing.T) {
	payload := []byte("hello")
	inline := caskey.Inline{Data: payload}
	s := inline.String()
	assert.True(t, caskey.IsInline(s))

	got, err := caskey.ParseInline(s)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBadKeySize(t *testing.T) {
	_, err := caskey.New([]byte{1, 2, 3})
	require.Error(t, err)
	var sizeErr caskey.BadKeySize
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 3, sizeErr.Got)
}

func TestParseDispatchesOnForm(t *testing.T) {
	want := caskey.SumBytes([]byte("x"))
	gotHex, err := caskey.Parse(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, gotHex)

	gotG, err := caskey.Parse(want.GString())
	require.NoError(t, err)
	assert.Equal(t, want, gotG)

	_, err = caskey.Parse("not-a-key")
	require.Error(t, err)
}

func TestZeroKeyIsZero(t *testing.T) {
	var z caskey.Key
	assert.True(t, z.IsZero())
	assert.False(t, caskey.SumBytes([]byte("a")).IsZero())
}
