package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/errs"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := errs.NotFound("key abc123 not found").Wrap(cause)

	require.Error(t, e)
	assert.Equal(t, "key abc123 not found", e.Error())
	assert.Equal(t, cause, errors.Unwrap(e))
	assert.Equal(t, errs.KindNotFound, e.Kind())
}

func TestKindOf(t *testing.T) {
	e := errs.DigestMismatch("digest mismatch on put")
	assert.Equal(t, errs.KindDigestMismatch, errs.KindOf(e))
	assert.Equal(t, errs.KindUnknown, errs.KindOf(errors.New("plain")))
}

func TestIsAs(t *testing.T) {
	cause := errs.GCRace("gc race")
	wrapped := errs.DiskError("flush failed").Wrap(cause)

	var target *errs.Error
	require.True(t, errs.As(wrapped, &target))
	assert.Equal(t, errs.KindDiskError, target.Kind())
}

func TestKindString(t *testing.T) {
	cases := map[errs.Kind]string{
		errs.KindMalformedInput:       "malformed-input",
		errs.KindNotFound:             "not-found",
		errs.KindDigestMismatch:       "digest-mismatch",
		errs.KindInsufficientReplicas: "insufficient-replicas",
		errs.KindGCRace:               "gc-race",
		errs.KindDiskError:            "disk-error",
		errs.KindTransportLost:        "transport-lost",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}
