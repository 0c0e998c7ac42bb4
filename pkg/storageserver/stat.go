package storageserver

import (
	"github.com/mortehu/cantera-cas/pkg/caskey"
	"github.com/mortehu/cantera-cas/pkg/errs"
)

// Stat reports the size of key's object without reading its bytes, used by
// rpcserver to compute get's expectSize advisory before streaming begins.
func (s *Server) Stat(key caskey.Key) (uint64, error) {
	if s.disableRead {
		return 0, errs.MalformedInput("storageserver: reads are disabled on this replica")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index[key]
	if !ok {
		return 0, errs.NotFound("storageserver: object " + key.String() + " does not exist")
	}
	return uint64(entry.Size), nil
}
