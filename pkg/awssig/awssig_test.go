package awssig_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/awssig"
)

// TestSignGlacierVector reproduces the AWS SigV4 test suite's glacier
// scenario, per spec.md §8 scenario 8 — the sole non-CAS test vector this
// repository carries.
func TestSignGlacierVector(t *testing.T) {
	signTime, err := time.Parse("20060102T150405Z", "20120525T002453Z")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, "https://glacier.us-east-1.amazonaws.com/-/vaults/examplevault", nil)
	require.NoError(t, err)
	req.Header.Set("x-amz-glacier-version", "2012-06-01")
	req.Header.Set("X-Amz-Date", signTime.Format("20060102T150405Z"))

	authHeader, err := awssig.Sign(req, "AKIDEXAMPLE", "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", "", "us-east-1", "glacier", signTime)
	require.NoError(t, err)

	assert.Contains(t, authHeader, "SignedHeaders=host;x-amz-date;x-amz-glacier-version")

	idx := strings.Index(authHeader, "Signature=")
	require.NotEqual(t, -1, idx)
	signature := authHeader[idx+len("Signature="):]
	assert.Equal(t, "3ce5b2f2fffac9262b4da9256f8d086b4aaf42eba5f111c21681a65a127b7c2a", signature)
}
