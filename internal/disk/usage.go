package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Usage is a snapshot of a filesystem's capacity in bytes.
type Usage struct {
	Total uint64
	Used  uint64
	Free  uint64 // available to unprivileged users
}

// Percent returns used space as a percentage of the space usable by
// unprivileged users, the way df reports Use%.
func (u Usage) Percent() float64 {
	usable := u.Used + u.Free
	if usable == 0 {
		return 0
	}
	return float64(u.Used) * 100 / float64(usable)
}

// Stat returns the usage of the filesystem containing path.
func Stat(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Usage{
		Total: st.Blocks * bsize,
		Used:  (st.Blocks - st.Bfree) * bsize,
		Free:  st.Bavail * bsize,
	}, nil
}
