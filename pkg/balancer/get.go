package balancer

import (
	"bytes"
	"context"
	"io"

	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/sharding"
)

// Get calls NextShardForKey starting from an empty tried-set; on backend
// failure it retries with the failed backend added, per spec.md §4.5,
// until the ring is exhausted (NextShardForKey's own error). Each attempt
// buffers locally so a mid-stream failure never hands the caller a partial
// write followed by a second, overlapping one.
func (s *Server) Get(ctx context.Context, key caskey.Key, offset, size uint64, w io.Writer) error {
	tried := make(map[*sharding.Backend]bool)
	keyStr := key.String()
	for {
		backend, err := s.info.NextShardForKey(key, tried)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := backendClient(backend).Get(ctx, keyStr, offset, size, &buf); err != nil {
			tried[backend] = true
			continue
		}
		_, err = w.Write(buf.Bytes())
		return err
	}
}
