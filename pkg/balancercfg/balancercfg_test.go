package balancercfg_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortehu/cantera-cas/pkg/balancercfg"
	"github.com/mortehu/cantera-cas/pkg/errs"
)

const sampleConfig = `
replicas: 2
backends:
  - addr: 10.0.0.1:6001
    failure-domain: 0
  - addr: 10.0.0.2:6001
    failure-domain: 1
  - addr: 10.0.0.3:6001
    failure-domain: 2
`

func TestUnmarshalValidConfig(t *testing.T) {
	cfg, err := balancercfg.Unmarshal([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Replicas)
	require.Len(t, cfg.Backends, 3)
	assert.Equal(t, "10.0.0.2:6001", cfg.Backends[1].Addr)
	assert.Equal(t, 1, cfg.Backends[1].FailureDomain)
}

func TestUnmarshalRejectsNoBackends(t *testing.T) {
	_, err := balancercfg.Unmarshal([]byte("replicas: 1\nbackends: []\n"))
	require.Error(t, err)
	assert.Equal(t, errs.KindMalformedInput, errs.KindOf(err))
}

func TestUnmarshalRejectsReplicasExceedingBackends(t *testing.T) {
	_, err := balancercfg.Unmarshal([]byte("replicas: 5\nbackends:\n  - addr: a:1\n    failure-domain: 0\n"))
	require.Error(t, err)
	assert.Equal(t, errs.KindMalformedInput, errs.KindOf(err))
}

func TestUnmarshalRejectsBadFailureDomain(t *testing.T) {
	_, err := balancercfg.Unmarshal([]byte("replicas: 1\nbackends:\n  - addr: a:1\n    failure-domain: 64\n"))
	require.Error(t, err)
}

func TestLoadRoundTripsThroughMarshal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "balancer.yaml")
	cfg, err := balancercfg.Unmarshal([]byte(sampleConfig))
	require.NoError(t, err)

	b, err := balancercfg.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(path, b, 0o644))

	loaded, err := balancercfg.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFsReadsThroughMemMapFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/balancer.yaml", []byte(sampleConfig), 0o644))

	cfg, err := balancercfg.LoadFs(fs, "/etc/balancer.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Replicas)
	require.Len(t, cfg.Backends, 3)
}

func TestLoadFsPropagatesMissingFileAsDiskError(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := balancercfg.LoadFs(fs, "/etc/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, errs.KindDiskError, errs.KindOf(err))
}
