//go:build !linux && !windows

package snapr

import (
	"os"
	"syscall"

	"github.com/Freaky/zfsnapr/pkg/safepath"
)

// A directory is a mountpoint when it sits on a different device than its
// parent. Nullfs and tmpfs mounts both get their own fsid, so this covers
// every mount kind the orchestrator creates.
func isMountpoint(path safepath.Path) (bool, error) {
	info, err := os.Lstat(path.String())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	parentInfo, err := os.Lstat(path.Parent().String())
	if err != nil {
		return false, err
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	parentStat, parentOk := parentInfo.Sys().(*syscall.Stat_t)
	if !ok || !parentOk {
		return false, nil
	}

	return stat.Dev != parentStat.Dev, nil
}
