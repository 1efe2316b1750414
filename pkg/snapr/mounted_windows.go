//go:build windows

package snapr

import (
	"github.com/Freaky/zfsnapr/pkg/safepath"
)

// No ZFS mount hierarchy to inspect on Windows.
func isMountpoint(path safepath.Path) (bool, error) {
	return false, nil
}
