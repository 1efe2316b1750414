//go:build linux

package snapr

import (
	"github.com/Freaky/zfsnapr/pkg/safepath"
	"github.com/prometheus/procfs"
)

func isMountpoint(path safepath.Path) (bool, error) {
	procSelf, err := procfs.Self()
	if err != nil {
		return false, err
	}

	mounts, err := procSelf.MountStats()
	if err != nil {
		return false, err
	}

	for _, mount := range mounts {
		if mount.Mount == path.String() {
			return true, nil
		}
	}

	return false, nil
}
