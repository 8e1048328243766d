//go:build linux || darwin

package preflight

import "golang.org/x/sys/unix"

// diskFree reports the bytes available to unprivileged writes on the
// filesystem holding path.
func diskFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
