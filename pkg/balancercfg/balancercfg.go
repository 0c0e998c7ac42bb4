// Package balancercfg loads the balancer's cluster topology file: the
// replication factor and the address/failure-domain of every backend.
package balancercfg

import (
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	"github.com/mortehu/cantera-cas/pkg/errs"
)

// Backend describes one storage backend entry in a cluster config file.
type Backend struct {
	Addr          string `yaml:"addr"`
	FailureDomain int    `yaml:"failure-domain"`
}

// Config is the YAML shape of a balancer config file, per spec.md §6.
type Config struct {
	Replicas int       `yaml:"replicas"`
	Backends []Backend `yaml:"backends"`
}

// Unmarshal parses a cluster config document and validates it.
func Unmarshal(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errs.MalformedInput("balancercfg: parsing config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a cluster config file from path.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads and parses a cluster config file from path through fs,
// mirroring cmd/datamon/cmd/bundle_diff.go's afero.Fs-backed file access
// so a test can substitute afero.NewMemMapFs() instead of touching disk.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errs.DiskError("balancercfg: reading config").Wrap(err)
	}
	return Unmarshal(b)
}

// Marshal serializes cfg back to its YAML document form.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Validate rejects configs spec.md §7 calls malformed input: no backends,
// a non-positive replication factor, a replication factor exceeding the
// backend count, or a failure domain outside 0..63 (pkg/sharding's
// MaxFailureDomains).
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return errs.MalformedInput("balancercfg: config has no backends")
	}
	if c.Replicas <= 0 {
		return errs.MalformedInput("balancercfg: replicas must be positive")
	}
	if c.Replicas > len(c.Backends) {
		return errs.MalformedInput("balancercfg: replicas exceeds backend count")
	}
	for _, b := range c.Backends {
		if b.Addr == "" {
			return errs.MalformedInput("balancercfg: backend missing addr")
		}
		if b.FailureDomain < 0 || b.FailureDomain > 63 {
			return errs.MalformedInput("balancercfg: failure-domain out of range 0..63")
		}
	}
	return nil
}
