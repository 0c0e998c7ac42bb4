// Package bucketcfg owns the repository's write-once `config` file: the
// sorted list of 20-byte bucket keys that positions a backend on the
// cluster's consistent-hash ring (spec §3, "Bucket").
package bucketcfg

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/mortehu/cantera-cas/internal/rand"
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/indexfmt"
	"github.com/mortehu/cantera-cas/pkg/wire"
)

// Config is the decoded contents of a repository's `config` file.
type Config struct {
	Buckets []caskey.Key
}

// record is the msgpack-framed payload written to disk. The spec's
// original capnp framing is replaced with a wire.WriteFrame/ReadFrame
// envelope (see pkg/wire's doc comment); the framing is still a single
// write-once record, matching "write-once" from the data model.
type record struct {
	Buckets [][]byte
}

// GenerateBucketCount computes ceil(totalBytes / HashBucketSize), with a
// floor of 1 so that even an empty repository contributes to the ring.
func GenerateBucketCount(totalBytes uint64) int {
	n := (totalBytes + indexfmt.HashBucketSize - 1) / indexfmt.HashBucketSize
	if n == 0 {
		n = 1
	}
	return int(n)
}

// Generate draws n random 20-byte bucket keys and returns them sorted, as
// required at first repository creation.
func Generate(n int) []caskey.Key {
	buckets := make([]caskey.Key, n)
	for i := range buckets {
		buckets[i] = caskey.MustNew(rand.Bytes(caskey.Size))
	}
	sort.Slice(buckets, func(i, j int) bool {
		return bytes.Compare(buckets[i][:], buckets[j][:]) < 0
	})
	return buckets
}

// Load reads and decodes the `config` file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	var rec record
	if err := wire.ReadFrame(f, &rec); err != nil {
		return Config{}, fmt.Errorf("bucketcfg: decoding %s: %w", path, err)
	}
	cfg := Config{Buckets: make([]caskey.Key, len(rec.Buckets))}
	for i, b := range rec.Buckets {
		k, err := caskey.New(b)
		if err != nil {
			return Config{}, fmt.Errorf("bucketcfg: bucket %d in %s: %w", i, path, err)
		}
		cfg.Buckets[i] = k
	}
	return cfg, nil
}

// Save writes cfg to path, creating it if absent. The file is write-once
// per the data model: callers must not call Save on a path that already
// exists.
func Save(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("bucketcfg: %s already exists, config is write-once", path)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	rec := record{Buckets: make([][]byte, len(cfg.Buckets))}
	for i, k := range cfg.Buckets {
		kk := k
		rec.Buckets[i] = kk[:]
	}
	if err := wire.WriteFrame(f, rec); err != nil {
		return err
	}
	return f.Sync()
}
