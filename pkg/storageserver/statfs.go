package storageserver

import "golang.org/x/sys/unix"

// statfs reports the filesystem's total and available bytes, used both to
// size a freshly created repository's bucket count and to answer capacity.
func (s *Server) statfs() (total, available uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(s.dir, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize) //nolint:unconvert // Bsize's width varies by platform
	return bsize * st.Blocks, bsize * st.Bavail, nil
}
